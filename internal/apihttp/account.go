package apihttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/keithlinneman/tripdesk/internal/cryptoutil"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/ratelimit"
	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/sanitize"
	"github.com/keithlinneman/tripdesk/internal/travel"
)

const maxFeedbackLen = 2000

var (
	feedbackFields = []string{"email", "topic", "message"}
	feedbackTopics = []string{"bug", "feature", "billing", "other"}
)

type feedbackInput struct {
	Email   string `json:"email"`
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

func (in feedbackInput) validate() string {
	switch {
	case !sanitize.Email(in.Email):
		return "Invalid email"
	case !sanitize.OneOf(in.Topic, feedbackTopics...):
		return "Invalid topic"
	case in.Message == "":
		return "Message is required"
	case !checkLen(in.Message, maxFeedbackLen):
		return "Message is too long"
	}
	return ""
}

type sessionView struct {
	Authenticated bool   `json:"authenticated"`
	AccountID     string `json:"account_id,omitempty"`
}

func (api *API) handleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(r)
	respond.JSON(w, http.StatusOK, sessionView{Authenticated: ok, AccountID: id})
}

func (api *API) handleFeedback(w http.ResponseWriter, r *http.Request) {
	raw, err := readJSONObject(w, r, api.maxJSON)
	if err != nil {
		api.writeBodyError(w, r, err)
		return
	}
	in, err := sanitize.Decode[feedbackInput](raw, feedbackFields)
	if err != nil {
		api.invalid(w, r, "Invalid field type")
		return
	}
	if msg := in.validate(); msg != "" {
		api.invalid(w, r, msg)
		return
	}

	acct, _ := accountID(r)
	f := api.store.SaveFeedback(travel.Feedback{
		AccountID: acct,
		Email:     in.Email,
		Topic:     in.Topic,
		Message:   in.Message,
	})
	log.FromContext(r.Context()).Info(r.Context(), "feedback received", "feedback_id", f.ID, "topic", f.Topic)
	respond.JSON(w, http.StatusCreated, map[string]any{"id": f.ID, "received": true})
}

func (api *API) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	sum, atts := api.store.DeleteAccount(acct)
	api.deleteObjects(r, atts)
	log.FromContext(r.Context()).Info(r.Context(), "account deleted",
		"account_id", acct,
		"trips", sum.Trips,
		"attachments", sum.Attachments,
	)
	respond.JSON(w, http.StatusOK, map[string]any{"deleted": sum})
}

type policyView struct {
	Limit    int   `json:"limit"`
	WindowMS int64 `json:"window_ms"`
}

type rateLimitView struct {
	Policies   map[ratelimit.Category]policyView `json:"policies"`
	Keys       int                               `json:"keys"`
	ByCategory map[ratelimit.Category]int        `json:"by_category"`
	LastSweep  time.Time                         `json:"last_sweep"`
}

// handleAdminRateLimit reports limiter occupancy. Requires the admin bearer token.
func (api *API) handleAdminRateLimit(w http.ResponseWriter, r *http.Request) {
	if api.adminToken == "" {
		respond.Error(w, http.StatusNotFound, "Not found")
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !cryptoutil.TokenEqual(token, api.adminToken) {
		log.FromContext(r.Context()).Warn(r.Context(), "admin access denied")
		respond.Error(w, http.StatusForbidden, "Forbidden")
		return
	}

	st := api.limiter.Stats()
	policies := make(map[ratelimit.Category]policyView)
	for c, p := range api.limiter.Policies() {
		policies[c] = policyView{Limit: p.Limit, WindowMS: p.Window.Milliseconds()}
	}
	respond.JSON(w, http.StatusOK, rateLimitView{
		Policies:   policies,
		Keys:       st.Keys,
		ByCategory: st.ByCategory,
		LastSweep:  st.LastSweep,
	})
}
