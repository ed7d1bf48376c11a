package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/tripdesk/internal/httpmw"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/sanitize"
)

// AccountHeader carries the caller's account id. Authentication happens
// upstream; this service only checks the id is well formed.
const AccountHeader = "X-Account-Id"

var (
	errBodyTooLarge = errors.New("request body too large")
	errBadJSON      = errors.New("invalid JSON body")
)

// readJSONObject decodes a JSON object body of at most limit bytes.
func readJSONObject(w http.ResponseWriter, r *http.Request, limit int64) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	var in map[string]any
	if err := dec.Decode(&in); err != nil {
		if tooLarge(err) {
			return nil, errBodyTooLarge
		}
		return nil, errBadJSON
	}
	if in == nil {
		return nil, errBadJSON
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if tooLarge(err) {
			return nil, errBodyTooLarge
		}
		return nil, errBadJSON
	}
	return in, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// writeBodyError maps readJSONObject failures to 413 or 400.
func (api *API) writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		respond.Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	api.invalid(w, r, "Invalid JSON body")
}

// invalid answers 400 and counts the failure against the route pattern.
func (api *API) invalid(w http.ResponseWriter, r *http.Request, msg string) {
	api.metrics.IncValidationFailure(httpmw.RoutePattern(r))
	log.FromContext(r.Context()).Debug(r.Context(), "request rejected by validation", "reason", msg)
	respond.BadRequest(w, msg)
}

func (api *API) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log.FromContext(r.Context()).Error(r.Context(), err, msg)
	respond.Error(w, http.StatusInternalServerError, "Internal server error")
}

// accountID returns the caller's account when the header holds a valid id.
func accountID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(AccountHeader))
	if id == "" || !sanitize.Identifier(id) {
		return "", false
	}
	return id, true
}

// requireAccount writes 401 and returns false when no valid account is present.
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := accountID(r)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Authentication required")
	}
	return id, ok
}

// pathID reads a route parameter and answers 400 when it is not a valid id.
func (api *API) pathID(w http.ResponseWriter, r *http.Request, param, what string) (string, bool) {
	id := chi.URLParam(r, param)
	if !sanitize.Identifier(id) {
		api.invalid(w, r, "Invalid "+what+" id")
		return "", false
	}
	return id, true
}

// checkLen reports whether s is within max runes.
func checkLen(s string, max int) bool {
	return utf8.RuneCountInString(s) <= max
}

func isCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
