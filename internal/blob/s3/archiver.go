package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// archiveBatchSize caps how many events one archive pass pulls from the
// journal per page.
const archiveBatchSize = 5000

// EventArchiver periodically copies the ledger event journal to object
// storage as newline-delimited JSON, partitioned by month. The journal rows
// themselves are never deleted; the archive is a cold replica for indexers
// and audits.
type EventArchiver struct {
	writer   domain.BlobWriter
	events   domain.EventStore
	logger   *slog.Logger
	interval time.Duration

	lastArchived time.Time
}

// NewEventArchiver creates an archiver that uploads one batch per interval.
func NewEventArchiver(writer domain.BlobWriter, events domain.EventStore, interval time.Duration, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		writer:   writer,
		events:   events,
		logger:   logger,
		interval: interval,
	}
}

// Run archives on a ticker until the context is cancelled. Errors are
// logged and retried on the next tick.
func (a *EventArchiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.logger.Error("archiver: pass failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("archiver: uploaded events", slog.Int("count", count))
			}
		}
	}
}

// ArchiveOnce uploads every journal event recorded since the previous pass
// and returns how many were written.
func (a *EventArchiver) ArchiveOnce(ctx context.Context) (int, error) {
	events, err := a.events.ListSince(ctx, a.lastArchived, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	last := events[len(events)-1].At
	key := archiveKey(last)
	if err := a.writer.Put(ctx, key, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	// Advance past the last archived event so the next pass starts after
	// it. ListSince is inclusive of its lower bound.
	a.lastArchived = last.Add(time.Nanosecond)
	return len(events), nil
}

// archiveKey builds the object key for an archive file, partitioned by
// year-month with the batch end time as the file name:
//
//	archive/events/2026-09/20260901T120000Z.jsonl
func archiveKey(end time.Time) string {
	return fmt.Sprintf("archive/events/%s/%s.jsonl",
		end.UTC().Format("2006-01"),
		end.UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises events as newline-delimited JSON, one compact
// line per event.
func marshalJSONL(events []domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return nil, fmt.Errorf("jsonl encode event %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
