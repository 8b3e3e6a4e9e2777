package storage

import (
	"context"
	"net/url"

	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/pkg/models"
)

// ImageSource resolves an upload reference to raw image bytes
type ImageSource interface {
	Fetch(ctx context.Context, ref string) (*models.ImageData, error)
}

// Router dispatches a reference to the fetcher for its scheme. Blob
// references are rejected when no blob storage is configured.
type Router struct {
	http ImageSource
	blob BlobStorage
}

func NewRouter(http ImageSource, blob BlobStorage) *Router {
	return &Router{http: http, blob: blob}
}

func (r *Router) Fetch(ctx context.Context, ref string) (*models.ImageData, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image reference", err)
	}

	var data *models.ImageData
	switch u.Scheme {
	case "http", "https":
		data, err = r.http.Fetch(ctx, ref)
	case BlobScheme:
		if r.blob == nil {
			return nil, apperrors.NewValidationError("blob storage is not configured", nil)
		}
		data, err = r.blob.Fetch(ctx, ref)
	default:
		return nil, apperrors.NewValidationError("unsupported image reference scheme", nil).
			WithDetail("scheme", u.Scheme)
	}
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.NewValidationError("could not fetch image", err)
	}
	return data, nil
}
