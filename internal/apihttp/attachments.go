package apihttp

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/keithlinneman/tripdesk/internal/attachments"
	"github.com/keithlinneman/tripdesk/internal/cryptoutil"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/respond"
	"github.com/keithlinneman/tripdesk/internal/sanitize"
	"github.com/keithlinneman/tripdesk/internal/travel"
)

// room for multipart boundaries and part headers on top of the file itself
const multipartOverhead = 16 << 10

const uploadField = "file"

type attachmentView struct {
	travel.Attachment
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

var (
	errNoFile       = errors.New("no file part")
	errFileTooLarge = errors.New("file too large")
)

// readUpload streams the multipart body and returns the first "file" part.
func (api *API) readUpload(w http.ResponseWriter, r *http.Request) (filename, contentType string, body []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, api.maxUpload+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", nil, errNoFile
		}
		if err != nil {
			return "", "", nil, err
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		body, err := io.ReadAll(io.LimitReader(part, api.maxUpload+1))
		_ = part.Close()
		if err != nil {
			return "", "", nil, err
		}
		if int64(len(body)) > api.maxUpload {
			return "", "", nil, errFileTooLarge
		}
		return rawFilename(part), part.Header.Get("Content-Type"), body, nil
	}
}

// rawFilename returns the filename parameter as sent. Part.FileName already
// applies filepath.Base, which would cut markup such as "</b>" in half
// before it can be stripped.
func rawFilename(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return part.FileName()
	}
	return params["filename"]
}

func (api *API) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	tripID, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	if _, err := api.store.GetTrip(acct, tripID); err != nil {
		api.storeError(w, r, err)
		return
	}

	filename, declared, body, err := api.readUpload(w, r)
	switch {
	case errors.Is(err, errFileTooLarge) || tooLarge(err):
		respond.Error(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	case errors.Is(err, errNoFile):
		api.invalid(w, r, "Missing file")
		return
	case err != nil:
		api.invalid(w, r, "Invalid multipart body")
		return
	}

	contentType, _, err := mime.ParseMediaType(declared)
	if err != nil || !sanitize.KnownMIME(contentType) {
		api.invalid(w, r, "Unsupported file type")
		return
	}
	contentType = strings.ToLower(contentType)
	if !sanitize.MagicBytes(body, contentType) {
		api.invalid(w, r, "File content does not match its type")
		return
	}

	id := travel.NewRecordID()
	key, err := attachments.ObjectKey(tripID, id, sanitize.Text(filename))
	if err != nil {
		api.invalid(w, r, "Invalid filename")
		return
	}
	if err := api.storage.Put(ctx, key, contentType, body); err != nil {
		api.internalError(w, r, err, "store attachment")
		return
	}

	att, err := api.store.AddAttachment(acct, tripID, travel.Attachment{
		ID:          id,
		Filename:    key[strings.LastIndex(key, "/")+1:],
		ContentType: contentType,
		Size:        int64(len(body)),
		SHA256:      cryptoutil.SHA256Hex(body),
		ObjectKey:   key,
	})
	if err != nil {
		// trip deleted between the lookup and now
		api.deleteObjects(r, []travel.Attachment{{ObjectKey: key}})
		api.storeError(w, r, err)
		return
	}
	api.metrics.ObserveUpload(contentType, len(body))
	log.FromContext(ctx).Info(ctx, "attachment stored",
		"trip_id", tripID,
		"attachment_id", att.ID,
		"content_type", contentType,
		"bytes", len(body),
	)

	view := attachmentView{Attachment: att}
	if u, err := api.storage.SignedURL(ctx, key, api.signedTTL); err == nil {
		view.URL = u
		view.ExpiresAt = time.Now().Add(api.signedTTL).UTC().Truncate(time.Second)
	} else {
		log.FromContext(ctx).Warn(ctx, "presign after upload failed", "err", err.Error())
	}
	respond.JSON(w, http.StatusCreated, view)
}

func (api *API) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	tripID, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	list, err := api.store.ListAttachments(acct, tripID)
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"attachments": list})
}

func (api *API) handleAttachmentURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acct, ok := requireAccount(w, r)
	if !ok {
		return
	}
	tripID, ok := api.pathID(w, r, "tripID", "trip")
	if !ok {
		return
	}
	attID, ok := api.pathID(w, r, "attachmentID", "attachment")
	if !ok {
		return
	}
	list, err := api.store.ListAttachments(acct, tripID)
	if err != nil {
		api.storeError(w, r, err)
		return
	}
	for _, a := range list {
		if a.ID != attID {
			continue
		}
		u, err := api.storage.SignedURL(ctx, a.ObjectKey, api.signedTTL)
		if err != nil {
			api.internalError(w, r, err, "presign attachment")
			return
		}
		respond.JSON(w, http.StatusOK, attachmentView{
			Attachment: a,
			URL:        u,
			ExpiresAt:  time.Now().Add(api.signedTTL).UTC().Truncate(time.Second),
		})
		return
	}
	respond.Error(w, http.StatusNotFound, "Attachment not found")
}
