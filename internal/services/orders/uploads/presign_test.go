package uploads

import (
	"strings"
	"testing"
	"time"

	"github.com/commerceloop/orderflow/internal/platform/errors"
)

func newTestService() *Service {
	return NewService("https://uploads.example.com",
		WithClock(func() time.Time {
			return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		}),
		WithKeyNonce(func() string { return "abcd1234" }),
	)
}

func TestPresign(t *testing.T) {
	svc := newTestService()

	slot, err := svc.Presign("tenant-a", PresignInput{
		Filename:    "invoice.pdf",
		ContentType: "application/pdf",
		Size:        2048,
	})
	if err != nil {
		t.Fatalf("Presign() error = %v", err)
	}
	if slot.StorageKey != "tenants/tenant-a/orders/ord_abcd1234/invoice.pdf" {
		t.Errorf("Presign() key = %q", slot.StorageKey)
	}
	if !strings.HasPrefix(slot.URL, "https://uploads.example.com/tenants/tenant-a/orders/ord_abcd1234/invoice.pdf?") {
		t.Errorf("Presign() url = %q", slot.URL)
	}
	if !strings.Contains(slot.URL, "expires=") {
		t.Errorf("Presign() url lacks expiry: %q", slot.URL)
	}
	if slot.Method != "PUT" {
		t.Errorf("Presign() method = %q, want PUT", slot.Method)
	}
	if slot.Headers["Content-Type"] != "application/pdf" {
		t.Errorf("Presign() headers = %v", slot.Headers)
	}

	wantExpiry := time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC).UnixMilli()
	if slot.ExpiresAt != wantExpiry {
		t.Errorf("Presign() expires at = %d, want %d", slot.ExpiresAt, wantExpiry)
	}
}

func TestPresignValidation(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name     string
		tenantID string
		input    PresignInput
		wantCode errors.Code
	}{
		{
			name:     "missing tenant",
			tenantID: " ",
			input:    PresignInput{Filename: "a.pdf", ContentType: "application/pdf", Size: 1},
			wantCode: errors.CodeOrderTenantIDEmpty,
		},
		{
			name:     "missing filename",
			tenantID: "tenant-a",
			input:    PresignInput{ContentType: "application/pdf", Size: 1},
			wantCode: errors.CodeUploadFilenameEmpty,
		},
		{
			name:     "missing content type",
			tenantID: "tenant-a",
			input:    PresignInput{Filename: "a.pdf", Size: 1},
			wantCode: errors.CodeUploadContentTypeEmpty,
		},
		{
			name:     "zero size",
			tenantID: "tenant-a",
			input:    PresignInput{Filename: "a.pdf", ContentType: "application/pdf"},
			wantCode: errors.CodeUploadSizeInvalid,
		},
		{
			name:     "oversized",
			tenantID: "tenant-a",
			input:    PresignInput{Filename: "a.pdf", ContentType: "application/pdf", Size: 11 << 20},
			wantCode: errors.CodeUploadSizeInvalid,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Presign(tc.tenantID, tc.input)
			if got := errors.CodeOf(err); got != tc.wantCode {
				t.Errorf("Presign() code = %q, want %q", got, tc.wantCode)
			}
		})
	}
}

func TestPresignStripsPathTraversal(t *testing.T) {
	svc := newTestService()

	slot, err := svc.Presign("tenant-a", PresignInput{
		Filename:    "../../etc/passwd",
		ContentType: "text/plain",
		Size:        10,
	})
	if err != nil {
		t.Fatalf("Presign() error = %v", err)
	}
	if slot.StorageKey != "tenants/tenant-a/orders/ord_abcd1234/passwd" {
		t.Errorf("Presign() key = %q, traversal not stripped", slot.StorageKey)
	}
}
