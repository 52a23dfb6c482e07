// Package uploads issues presigned upload slots for order attachments.
// The store is simulated: keys follow the production layout and URLs
// expire, but no object storage backend is contacted.
package uploads

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/errors"
	"github.com/google/uuid"
)

const (
	// presignTTL bounds how long an issued upload URL stays valid.
	presignTTL = 120 * time.Second

	maxUploadSize = 10 << 20
)

// PresignInput describes the file a client wants to upload.
type PresignInput struct {
	Filename    string
	ContentType string
	Size        int64
}

// PresignedUpload is one issued upload slot.
type PresignedUpload struct {
	StorageKey string
	URL        string
	Method     string
	Headers    map[string]string
	ExpiresAt  int64
}

// Service issues presigned uploads under a base endpoint.
type Service struct {
	baseURL string
	clock   func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithKeyNonce overrides the random key segment generator.
func WithKeyNonce(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates an upload service issuing URLs under baseURL.
func NewService(baseURL string, opts ...Option) *Service {
	s := &Service{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clock:   time.Now,
		newID: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Presign validates the upload request and issues a short-lived slot
// scoped to the tenant.
func (s *Service) Presign(tenantID string, input PresignInput) (PresignedUpload, error) {
	if s == nil {
		return PresignedUpload{}, errors.New(errors.CodeUnknown, "upload service is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return PresignedUpload{}, errors.New(errors.CodeOrderTenantIDEmpty, "tenant id is required")
	}

	filename := sanitizeFilename(input.Filename)
	if filename == "" {
		return PresignedUpload{}, errors.New(errors.CodeUploadFilenameEmpty, "filename is required")
	}
	contentType := strings.TrimSpace(input.ContentType)
	if contentType == "" {
		return PresignedUpload{}, errors.New(errors.CodeUploadContentTypeEmpty, "content type is required")
	}
	if input.Size < 1 || input.Size > maxUploadSize {
		return PresignedUpload{}, errors.WithMetadata(errors.CodeUploadSizeInvalid,
			"upload size is out of range", map[string]string{
				"size": fmt.Sprintf("%d", input.Size),
			})
	}

	storageKey := fmt.Sprintf("tenants/%s/orders/ord_%s/%s", tenantID, s.newID(), filename)
	expiresAt := s.clock().UTC().Add(presignTTL)

	query := url.Values{}
	query.Set("expires", fmt.Sprintf("%d", expiresAt.Unix()))
	uploadURL := fmt.Sprintf("%s/%s?%s", s.baseURL, storageKey, query.Encode())

	return PresignedUpload{
		StorageKey: storageKey,
		URL:        uploadURL,
		Method:     "PUT",
		Headers:    map[string]string{"Content-Type": contentType},
		ExpiresAt:  expiresAt.UnixMilli(),
	}, nil
}

// sanitizeFilename keeps only the final path element so keys cannot
// escape the tenant prefix.
func sanitizeFilename(filename string) string {
	filename = strings.TrimSpace(filename)
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if filename == "." || filename == "/" {
		return ""
	}
	return filename
}
