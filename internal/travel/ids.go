package travel

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
)

const cuidBodyLen = 24

// NewTripID returns a random UUID.
func NewTripID() string { return uuid.NewString() }

// NewRecordID returns "c" + 24 lowercase base32 characters.
func NewRecordID() string {
	return "c" + strings.ToLower(rand.Text()[:cuidBodyLen])
}
