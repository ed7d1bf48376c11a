package attachments

import (
	"context"
	"errors"
	"time"

	"github.com/keithlinneman/tripdesk/internal/pathutil"
	"github.com/keithlinneman/tripdesk/internal/xerrors"
)

// Storage is the object store behind attachment uploads.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

var (
	ErrInvalidKey = errors.New("invalid object key")
	ErrNotFound   = errors.New("object not found")
)

// ObjectKey builds "<trip>/<attachment>/<filename>" from already validated
// ids and a client filename. The filename is reduced to its last element and
// the assembled key is rejected if it still contains a dot segment.
func ObjectKey(tripID, attachmentID, filename string) (string, error) {
	if tripID == "" || attachmentID == "" {
		return "", ErrInvalidKey
	}
	name, ok := pathutil.CleanFilename(filename)
	if !ok {
		return "", xerrors.Wrapf(ErrInvalidKey, "filename %q", filename)
	}
	key := tripID + "/" + attachmentID + "/" + name
	if pathutil.HasDotSegments(key) {
		return "", ErrInvalidKey
	}
	return key, nil
}

// DeleteAll removes keys best-effort and returns every failure joined.
func DeleteAll(ctx context.Context, s Storage, keys []string) error {
	var errs []error
	for _, k := range keys {
		if k == "" {
			continue
		}
		if err := s.Delete(ctx, k); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, xerrors.Wrapf(err, "delete %s", k))
		}
	}
	return errors.Join(errs...)
}
