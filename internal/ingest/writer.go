package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/noise-cli/internal/model"
)

// DefaultChunkSize keeps each upsert request well under store limits.
const DefaultChunkSize = 1000

// ChunkStore is the merge-upsert contract the writer depends on.
type ChunkStore interface {
	// UpsertReadings inserts or replaces readings keyed on (device_id, instant)
	// and returns the number of rows affected.
	UpsertReadings(ctx context.Context, rows []model.Reading) (int64, error)
}

// WriteResult is the outcome of one Write call.
type WriteResult struct {
	Affected     int64
	Chunks       int
	FailedChunks int
}

// UpsertWriter writes readings in fixed-size chunks. A failed chunk is
// logged and skipped; later chunks are still attempted.
type UpsertWriter struct {
	store     ChunkStore
	chunkSize int
}

// NewUpsertWriter creates a writer. A non-positive chunkSize uses DefaultChunkSize.
func NewUpsertWriter(store ChunkStore, chunkSize int) *UpsertWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &UpsertWriter{store: store, chunkSize: chunkSize}
}

// Write upserts rows chunk by chunk. Affected may be less than len(rows) under
// partial failure; 0 for a nonempty input means every chunk failed.
func (w *UpsertWriter) Write(ctx context.Context, rows []model.Reading) WriteResult {
	var res WriteResult
	if len(rows) == 0 {
		return res
	}

	log := zap.L().With(zap.String("component", "ingest.writer"))

	for start := 0; start < len(rows); start += w.chunkSize {
		end := min(start+w.chunkSize, len(rows))
		res.Chunks++

		n, err := w.store.UpsertReadings(ctx, rows[start:end])
		if err != nil {
			res.FailedChunks++
			log.Error("upsert chunk failed",
				zap.Int("from", start),
				zap.Int("to", end),
				zap.Error(err),
			)
			continue
		}
		res.Affected += n
	}

	return res
}
