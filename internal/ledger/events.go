package ledger

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mtvlabs/marketledger/internal/domain"
)

// emit journals, streams, and publishes a ledger event. The operation the
// event describes has already committed; fan-out failures are logged, never
// propagated. Callers must hold l.mu.
func (l *Ledger) emit(ctx context.Context, ev domain.Event) {
	ev.ID = l.newID()
	ev.At = l.now()

	if l.persist.Events != nil {
		if err := l.persist.Events.Append(ctx, ev); err != nil {
			l.logger.Error("journal event failed",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}

	if l.persist.Bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		l.logger.Error("marshal event failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := l.persist.Bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		l.logger.Warn("publish event failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := l.persist.Bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		l.logger.Warn("stream event failed",
			slog.String("event_id", ev.ID),
			slog.String("error", err.Error()),
		)
	}
}
