package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "go-palm-insight/internal/errors"
	"go-palm-insight/pkg/models"
)

const fetchAttempts = 3

// HTTPImageFetcher downloads uploads referenced by http(s) URL
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
	backoff  time.Duration
	log      logrus.FieldLogger
}

// NewHTTPImageFetcher creates a fetcher that refuses bodies over maxBytes
func NewHTTPImageFetcher(timeout time.Duration, maxBytes int64, log logrus.FieldLogger) *HTTPImageFetcher {
	transport := &http.Transport{
		// Connection pooling sized for single image downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes: maxBytes,
		backoff:  time.Second,
		log:      log.WithField("component", "http_image_fetcher"),
	}
}

// Fetch downloads imageURL. Network errors and 5xx responses are retried;
// 4xx responses are not.
func (h *HTTPImageFetcher) Fetch(ctx context.Context, imageURL string) (*models.ImageData, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		data, retryable, err := h.fetchOnce(ctx, imageURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable || attempt == fetchAttempts-1 {
			break
		}

		h.log.WithFields(logrus.Fields{
			"url":     imageURL,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Image fetch failed, retrying")

		select {
		case <-time.After(time.Duration(attempt+1) * h.backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("image fetch canceled: %w", ctx.Err())
		}
	}

	if appErr, ok := apperrors.As(lastErr); ok {
		return nil, appErr
	}
	return nil, fmt.Errorf("failed to fetch image after %d attempts: %w", fetchAttempts, lastErr)
}

func (h *HTTPImageFetcher) fetchOnce(ctx context.Context, imageURL string) (*models.ImageData, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, false, apperrors.NewValidationError("invalid image URL", err)
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, */*")
	req.Header.Set("User-Agent", "palm-insight/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, fmt.Errorf("client error: status code %d", resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, h.maxBytes, resp.Header.Get("Content-Type"))
	if err != nil {
		_, fatal := err.(*apperrors.AppError)
		return nil, !fatal, err
	}
	return data, false, nil
}

// readLimited reads at most maxBytes. A larger body is an IMAGE_TOO_LARGE
// violation rather than a silent truncation.
func readLimited(r io.Reader, maxBytes int64, contentType string) (*models.ImageData, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(buf)) > maxBytes {
		return nil, apperrors.NewImageProcessingError(apperrors.ViolationTooLarge,
			fmt.Sprintf("image exceeds %d bytes", maxBytes), nil).
			WithDetail("max_size_bytes", maxBytes)
	}
	return &models.ImageData{
		Buffer:   buf,
		MimeType: mimeType(contentType, buf),
		Size:     int64(len(buf)),
	}, nil
}

// mimeType trusts a declared image type and sniffs anything else
func mimeType(declared string, buf []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	return http.DetectContentType(buf)
}
