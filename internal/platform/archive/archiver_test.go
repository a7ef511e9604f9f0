package archive

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBucketWriter struct {
	objectName  string
	contentType string
	data        []byte
	err         error
}

func (f *fakeBucketWriter) write(_ context.Context, objectName, contentType string, data []byte) error {
	f.objectName = objectName
	f.contentType = contentType
	f.data = data
	return f.err
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 3, 4, 9, 30, 15, 0, time.UTC)
	return func() time.Time { return at }
}

func TestStorePayloadObjectName(t *testing.T) {
	writer := &fakeBucketWriter{}
	archiver := NewArchiver("orders-raw", WithBucketWriter(writer), WithClock(fixedClock()))

	payload := []byte(`{"id":1001}`)
	objectName, err := archiver.StorePayload(context.Background(), "Caravan.Example.Com", "1001", payload)
	if err != nil {
		t.Fatalf("StorePayload: %v", err)
	}
	want := "raw/caravan.example.com/2025/03/04/1001-093015.json"
	if objectName != want {
		t.Fatalf("object name %q, want %q", objectName, want)
	}
	if writer.objectName != want {
		t.Fatalf("writer received %q", writer.objectName)
	}
	if writer.contentType != "application/json" {
		t.Fatalf("content type %q", writer.contentType)
	}
	if string(writer.data) != `{"id":1001}` {
		t.Fatalf("payload altered: %q", writer.data)
	}
}

func TestStorePayloadDisabledWithoutBucket(t *testing.T) {
	archiver := NewArchiver("  ", WithBucketWriter(&fakeBucketWriter{}))

	if archiver.Enabled() {
		t.Fatal("archiver must be disabled without a bucket")
	}
	if _, err := archiver.StorePayload(context.Background(), "s", "1", []byte("x")); !errors.Is(err, errArchiverDisabled) {
		t.Fatalf("expected errArchiverDisabled, got %v", err)
	}
}

func TestStorePayloadRejectsEmptyPayload(t *testing.T) {
	archiver := NewArchiver("orders-raw", WithBucketWriter(&fakeBucketWriter{}))

	if _, err := archiver.StorePayload(context.Background(), "s", "1", nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestStorePayloadPropagatesWriteFailure(t *testing.T) {
	writer := &fakeBucketWriter{err: errors.New("bucket unavailable")}
	archiver := NewArchiver("orders-raw", WithBucketWriter(writer), WithClock(fixedClock()))

	if _, err := archiver.StorePayload(context.Background(), "s", "1", []byte("x")); err == nil {
		t.Fatal("expected write error to propagate")
	}
}
