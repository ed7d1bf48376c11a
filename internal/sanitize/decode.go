package sanitize

import (
	"encoding/json"

	"github.com/keithlinneman/tripdesk/internal/xerrors"
)

// Decode whitelists in with Fields and decodes the survivors into a T using
// T's json tags. Type mismatches (a number where T wants a string) are
// returned as errors; unknown keys cannot reach T because Fields dropped them.
func Decode[T any](in map[string]any, allowed []string) (T, error) {
	var out T
	b, err := json.Marshal(Fields(in, allowed))
	if err != nil {
		return out, xerrors.Wrap(err, "encode whitelisted fields")
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, xerrors.Wrap(err, "decode whitelisted fields")
	}
	return out, nil
}
