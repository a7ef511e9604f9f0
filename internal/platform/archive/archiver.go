package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var errArchiverDisabled = errors.New("archive: no bucket configured")

// Archiver stores raw webhook payloads in a Cloud Storage bucket so orders
// can be replayed or audited after transient processing failures. Writes are
// best-effort from the caller's point of view; the archiver itself reports
// errors and leaves the retry decision to the caller.
type Archiver struct {
	bucket string
	now    func() time.Time

	clientOpts []option.ClientOption

	initOnce sync.Once
	writer   bucketWriter
	initErr  error
}

type bucketWriter interface {
	write(ctx context.Context, objectName, contentType string, data []byte) error
}

// ArchiverOption customises the archiver.
type ArchiverOption func(*Archiver)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ArchiverOption {
	return func(a *Archiver) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithClientOptions forwards Cloud client options when constructing the
// storage client.
func WithClientOptions(opts ...option.ClientOption) ArchiverOption {
	return func(a *Archiver) {
		a.clientOpts = append(a.clientOpts, opts...)
	}
}

// WithBucketWriter injects a fake writer for tests.
func WithBucketWriter(writer bucketWriter) ArchiverOption {
	return func(a *Archiver) {
		if writer != nil {
			a.writer = writer
		}
	}
}

// NewArchiver constructs an Archiver targeting the supplied bucket. An empty
// bucket name disables archiving. The storage client is not dialled until the
// first write.
func NewArchiver(bucket string, opts ...ArchiverOption) *Archiver {
	archiver := &Archiver{
		bucket: strings.TrimSpace(bucket),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(archiver)
		}
	}
	return archiver
}

// Enabled reports whether a destination bucket is configured.
func (a *Archiver) Enabled() bool {
	return a != nil && a.bucket != ""
}

// StorePayload writes the raw payload under a date-partitioned object name
// and returns the object path.
func (a *Archiver) StorePayload(ctx context.Context, storeDomain, orderID string, payload []byte) (string, error) {
	if !a.Enabled() {
		return "", errArchiverDisabled
	}
	if len(payload) == 0 {
		return "", errors.New("archive: payload is empty")
	}

	writer, err := a.ensureWriter(ctx)
	if err != nil {
		return "", err
	}

	objectName := a.objectName(storeDomain, orderID)
	if err := writer.write(ctx, objectName, "application/json", payload); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", objectName, err)
	}
	return objectName, nil
}

func (a *Archiver) objectName(storeDomain, orderID string) string {
	domain := strings.ToLower(strings.TrimSpace(storeDomain))
	if domain == "" {
		domain = "unknown-store"
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		id = "unknown-order"
	}
	ts := a.now().UTC()
	return fmt.Sprintf("raw/%s/%s/%s-%s.json", domain, ts.Format("2006/01/02"), id, ts.Format("150405"))
}

func (a *Archiver) ensureWriter(ctx context.Context) (bucketWriter, error) {
	if a.writer != nil {
		return a.writer, nil
	}
	a.initOnce.Do(func() {
		client, err := storage.NewClient(ctx, a.clientOpts...)
		if err != nil {
			a.initErr = fmt.Errorf("archive: create storage client: %w", err)
			return
		}
		a.writer = &gcsBucketWriter{bucket: client.Bucket(a.bucket)}
	})
	if a.initErr != nil {
		return nil, a.initErr
	}
	return a.writer, nil
}

type gcsBucketWriter struct {
	bucket *storage.BucketHandle
}

func (g *gcsBucketWriter) write(ctx context.Context, objectName, contentType string, data []byte) error {
	w := g.bucket.Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
