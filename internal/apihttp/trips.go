package apihttp

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/tripdesk/internal/attachments"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/sanitize"
	"github.com/keithlinneman/tripdesk/internal/travel"
)

const (
	maxTitleLen       = 200
	maxDestinationLen = 200
	maxPurposeLen     = 500
	maxNotesLen       = 5000
)

var tripFields = []string{"title", "destination", "purpose", "start_date", "end_date", "status", "notes"}

// tripInput is the whitelisted trip body; nil fields were absent.
type tripInput struct {
	Title       *string `json:"title"`
	Destination *string `json:"destination"`
	Purpose     *string `json:"purpose"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
	Status      *string `json:"status"`
	Notes       *string `json:"notes"`
}

func (in tripInput) empty() bool {
	return in.Title == nil && in.Destination == nil && in.Purpose == nil &&
		in.StartDate == nil && in.EndDate == nil && in.Status == nil && in.Notes == nil
}

// validate checks formats of present fields. create additionally requires
// title, destination and start date.
func (in tripInput) validate(create bool) string {
	if create {
		switch {
		case in.Title == nil || *in.Title == "":
			return "Title is required"
		case in.Destination == nil || *in.Destination == "":
			return "Destination is required"
		case in.StartDate == nil:
			return "Start date is required"
		}
	}
	if in.Title != nil && (*in.Title == "" || !checkLen(*in.Title, maxTitleLen)) {
		return "Invalid title"
	}
	if in.Destination != nil && (*in.Destination == "" || !checkLen(*in.Destination, maxDestinationLen)) {
		return "Invalid destination"
	}
	if in.Purpose != nil && !checkLen(*in.Purpose, maxPurposeLen) {
		return "Purpose is too long"
	}
	if in.Notes != nil && !checkLen(*in.Notes, maxNotesLen) {
		return "Notes are too long"
	}
	if in.StartDate != nil && !sanitize.Date(*in.StartDate) {
		return "Invalid start date"
	}
	if in.EndDate != nil && *in.EndDate != "" && !sanitize.Date(*in.EndDate) {
		return "Invalid end date"
	}
	if in.Status != nil && !sanitize.OneOf(*in.Status, travel.Statuses()...) {
		return "Invalid status"
	}
	return ""
}

func (in tripInput) patch() travel.TripPatch {
	return travel.TripPatch{
		Title:       in.Title,
		Destination: in.Destination,
		Purpose:     in.Purpose,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		Status:      in.Status,
		Notes:       in.Notes,
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// decodeTrip reads, whitelists and type-checks a trip body.
func (api *API) decodeTrip(w http.ResponseWriter, r *http.Request) (tripInput, bool) {
	raw, err := readJSONObject(w, r, api.maxJSON)
	if err != nil {
		api.writeBodyError(w, r, err)
		return tripInput{}, false
	}
	in, err := sanitize.Decode[tripInput](raw, tripFields)
	if err != nil {
		api.invalid(w, r, "Invalid field type")
		return tripInput{}, false
	}
	return in, true
}

func (api *API) handleListTrips(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"trips": api.store.ListTrips(acct)})
}

func (api *API) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	in, ok := api.decodeTrip(w, r)
	if !ok {
		return
	}
	if msg := in.validate(true); msg != "" {
		api.invalid(w, r, msg)
		return
	}

	trip := api.store.CreateTrip(acct, travel.Trip{
		Title:       deref(in.Title),
		Destination: deref(in.Destination),
		Purpose:     deref(in.Purpose),
		StartDate:   deref(in.StartDate),
		EndDate:     deref(in.EndDate),
		Status:      deref(in.Status),
		Notes:       deref(in.Notes),
	})
	log.FromContext(r.Context()).Info(r.Context(), "trip created", "trip_id", trip.ID)
	respond.JSON(w, http.StatusCreated, trip)
}

func (api *API) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	trip, err := api.store.GetTrip(acct, id)
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, trip)
}

func (api *API) handleUpdateTrip(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	in, ok := api.decodeTrip(w, r)
	if !ok {
		return
	}
	if in.empty() {
		api.invalid(w, r, "No updatable fields provided")
		return
	}
	if msg := in.validate(false); msg != "" {
		api.invalid(w, r, msg)
		return
	}

	trip, err := api.store.UpdateTrip(acct, id, in.patch())
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, trip)
}

func (api *API) handleDeleteTrip(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	id, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	removed, err := api.store.DeleteTrip(acct, id)
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	api.deleteObjects(r, removed)
	log.FromContext(r.Context()).Info(r.Context(), "trip deleted", "trip_id", id, "attachments", len(removed))
	respond.NoContent(w)
}

// deleteObjects removes stored files for deleted records. Failures are
// logged and otherwise ignored; the records are already gone.
func (api *API) deleteObjects(r *http.Request, atts []travel.Attachment) {
	if len(atts) == 0 {
		return
	}
	keys := make([]string, 0, len(atts))
	for _, a := range atts {
		keys = append(keys, a.ObjectKey)
	}
	if err := attachments.DeleteAll(r.Context(), api.storage, keys); err != nil {
		log.FromContext(r.Context()).Warn(r.Context(), "attachment cleanup incomplete", "err", err.Error())
	}
}

func (api *API) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, travel.ErrNotFound) {
		respond.Error(w, http.StatusNotFound, "Trip not found")
		return
	}
	api.internalError(w, r, err, "store operation failed")
}
