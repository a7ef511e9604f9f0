package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFromRequestDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders", nil)

	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("page size %d, want %d", params.PageSize, DefaultPageSize)
	}
	if !params.Cursor.IsZero() {
		t.Fatal("expected zero cursor")
	}
}

func TestFromRequestClampsPageSize(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders?pageSize=5000", nil)

	params, err := FromRequest(req, Options{MaxPageSize: 100})
	if err != nil {
		t.Fatalf("FromRequest: %v", err)
	}
	if params.PageSize != 100 {
		t.Fatalf("page size %d, want clamp to 100", params.PageSize)
	}
}

func TestFromRequestRejectsBadPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		req := httptest.NewRequest("GET", "/api/v1/orders?pageSize="+raw, nil)
		if _, err := FromRequest(req, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize=%q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{
		CreatedAt: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
		ID:        "01JNHR5S8YV0P3",
	}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("DecodeToken: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestEncodeTokenZeroCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	if token != "" {
		t.Fatalf("zero cursor must encode to empty token, got %q", token)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"%%%", "bm90LWpzb24", "e30"} {
		if _, err := DecodeToken(raw); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", raw, err)
		}
	}
}
