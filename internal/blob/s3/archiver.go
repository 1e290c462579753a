package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/ertledger/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

var _ domain.Archiver = (*Archiver)(nil)

// Archiver writes one UTC day of settlement records or ledger events as JSONL
// to archive/{kind}/YYYY-MM-DD.jsonl. Days already archived are skipped, so
// reruns are harmless. Records stay in the primary store.
type Archiver struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	settlements domain.SettlementStore
	events      domain.EventStore
	logger      *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	settlements domain.SettlementStore,
	events domain.EventStore,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:      writer,
		reader:      reader,
		settlements: settlements,
		events:      events,
		logger:      logger,
	}
}

// ArchiveSettlements archives the settlement records of day and returns how
// many were written. Zero means the day was empty or already archived.
func (a *Archiver) ArchiveSettlements(ctx context.Context, day time.Time) (int64, error) {
	return archiveDay(ctx, a, "settlements", day, a.settlements.ListSettlements)
}

// ArchiveEvents archives the ledger events of day.
func (a *Archiver) ArchiveEvents(ctx context.Context, day time.Time) (int64, error) {
	return archiveDay(ctx, a, "events", day, a.events.ListEvents)
}

func archiveDay[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	day time.Time,
	list func(context.Context, domain.ListOpts) ([]T, error),
) (int64, error) {
	start, end := dayBounds(day)
	path := ArchivePath(kind, start)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}
	if exists {
		return 0, nil
	}

	records, err := list(ctx, domain.ListOpts{Since: &start, Until: &end})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s query: %w", kind, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	if int64(len(buf)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	a.logger.InfoContext(ctx, "s3blob: archived",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// dayBounds returns the UTC day containing t as [start, end).
func dayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ArchivePath builds the object key for one day of kind, e.g.
//
//	archive/settlements/2025-03-01.jsonl
func ArchivePath(kind string, day time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day.UTC().Format("2006-01-02"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
