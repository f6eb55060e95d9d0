package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	fbstorage "firebase.google.com/go/v4/storage"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

const downloadHost = "firebasestorage.googleapis.com"

// Object identifies a stored blob.
type Object struct {
	Bucket string
	Path   string
}

// FirebaseBlobStore deletes Firebase Storage objects addressed by download URL or gs:// reference.
type FirebaseBlobStore struct {
	client        *fbstorage.Client
	defaultBucket string
}

func NewFirebaseBlobStore(client *fbstorage.Client, defaultBucket string) *FirebaseBlobStore {
	return &FirebaseBlobStore{client: client, defaultBucket: defaultBucket}
}

func (s *FirebaseBlobStore) Delete(ctx context.Context, ref string) error {
	obj, err := ParseRef(ref, s.defaultBucket)
	if err != nil {
		return err
	}
	bucket, err := s.client.Bucket(obj.Bucket)
	if err != nil {
		return fmt.Errorf("open bucket %s: %w", obj.Bucket, err)
	}
	if err := bucket.Object(obj.Path).Delete(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("delete %s: %w", obj.Path, domerrors.ErrBlobNotFound)
		}
		return fmt.Errorf("delete %s: %w", obj.Path, err)
	}
	return nil
}

// ParseRef accepts:
//
//	gs://bucket/path/to/object
//	https://firebasestorage.googleapis.com/v0/b/<bucket>/o/<escaped path>?alt=media&token=...
//	path/to/object (resolved against defaultBucket)
func ParseRef(ref, defaultBucket string) (Object, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Object{}, domerrors.ErrInvalidBlobRef
	}

	if strings.HasPrefix(ref, "gs://") {
		bucket, path, ok := strings.Cut(strings.TrimPrefix(ref, "gs://"), "/")
		if !ok || bucket == "" || path == "" {
			return Object{}, fmt.Errorf("%q: %w", ref, domerrors.ErrInvalidBlobRef)
		}
		return Object{Bucket: bucket, Path: path}, nil
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		u, err := url.Parse(ref)
		if err != nil || u.Host != downloadHost {
			return Object{}, fmt.Errorf("%q: %w", ref, domerrors.ErrInvalidBlobRef)
		}
		// EscapedPath keeps %2F inside the object name intact.
		parts := strings.SplitN(strings.TrimPrefix(u.EscapedPath(), "/"), "/", 5)
		if len(parts) != 5 || parts[0] != "v0" || parts[1] != "b" || parts[3] != "o" {
			return Object{}, fmt.Errorf("%q: %w", ref, domerrors.ErrInvalidBlobRef)
		}
		path, err := url.PathUnescape(parts[4])
		if err != nil || parts[2] == "" || path == "" {
			return Object{}, fmt.Errorf("%q: %w", ref, domerrors.ErrInvalidBlobRef)
		}
		return Object{Bucket: parts[2], Path: path}, nil
	}

	if defaultBucket == "" {
		return Object{}, fmt.Errorf("%q without default bucket: %w", ref, domerrors.ErrInvalidBlobRef)
	}
	return Object{Bucket: defaultBucket, Path: strings.TrimPrefix(ref, "/")}, nil
}

var _ ports.BlobStore = (*FirebaseBlobStore)(nil)
