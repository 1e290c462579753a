package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ertledger/internal/domain"
	"github.com/alanyoungcy/ertledger/internal/store/memory"
)

type memBlobs struct {
	objects map[string]string
	puts    int
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = string(b)
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, jsonlContentType)
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{day.Add(-time.Minute), day.Add(time.Hour), day.Add(23 * time.Hour), day.Add(24 * time.Hour)} {
		require.NoError(t, s.Apply(context.Background(), domain.Changeset{
			Settlements: []domain.SettlementRecord{{RightID: uint64(i + 1), SettledAt: at}},
			Events:      []domain.Event{{ID: string(rune('a' + i)), Type: domain.EventRightSettled, At: at}},
		}))
	}
	return s
}

func TestArchiver_WritesOneDay(t *testing.T) {
	store := seeded(t)
	blobs := &memBlobs{objects: map[string]string{}}
	a := NewArchiver(blobs, blobs, store, store, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

	n, err := a.ArchiveSettlements(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body := blobs.objects["archive/settlements/2025-03-01.jsonl"]
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"right_id":2`)
	assert.Contains(t, lines[1], `"right_id":3`)

	n, err = a.ArchiveEvents(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, blobs.objects, "archive/events/2025-03-01.jsonl")
}

func TestArchiver_SkipsArchivedAndEmptyDays(t *testing.T) {
	store := seeded(t)
	blobs := &memBlobs{objects: map[string]string{}}
	a := NewArchiver(blobs, blobs, store, store, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := a.ArchiveSettlements(ctx, day)
	require.NoError(t, err)
	n, err := a.ArchiveSettlements(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, blobs.puts)

	n, err = a.ArchiveSettlements(ctx, day.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, blobs.puts)
}

type failingLister struct{}

func (failingLister) ListSettlements(context.Context, domain.ListOpts) ([]domain.SettlementRecord, error) {
	return nil, errors.New("db down")
}

func (failingLister) ListEvents(context.Context, domain.ListOpts) ([]domain.Event, error) {
	return nil, errors.New("db down")
}

func TestArchiver_QueryError(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{}}
	a := NewArchiver(blobs, blobs, failingLister{}, failingLister{}, slog.New(slog.DiscardHandler))
	_, err := a.ArchiveSettlements(context.Background(), time.Now())
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, blobs.puts)
}

func TestArchivePathAndEndpoint(t *testing.T) {
	at := time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -3*3600))
	assert.Equal(t, "archive/settlements/2025-03-02.jsonl", ArchivePath("settlements", at))

	assert.Equal(t, "https://s3.example", normaliseEndpoint("https://s3.example", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))

	assert.Error(t, ClientConfig{}.validate())
	assert.NoError(t, ClientConfig{Bucket: "b", Region: "r"}.validate())
}
