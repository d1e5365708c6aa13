// Package comms fans committed audit events out to in-process observers
// such as the dashboard event hub. Delivery is best effort: a subscriber
// failure is reported to the publisher but never undoes or blocks the
// state change the event describes.
package comms

import (
	"context"
	"log/slog"

	"github.com/signalbox/interlock/board"
)

// Handler consumes one committed audit event.
type Handler func(ctx context.Context, ev *board.AuditEvent) error

// Bus delivers committed audit events to subscribers and retains a short
// replay window for observers that connect late.
type Bus interface {
	// Publish fans ev out to every subscriber.
	Publish(ctx context.Context, ev *board.AuditEvent) error

	// Subscribe registers a handler under name. The returned function
	// removes it.
	Subscribe(name string, h Handler) (unsubscribe func())

	// History returns up to limit retained events, oldest first,
	// narrowed to one project unless project is empty.
	History(project string, limit int) []*board.AuditEvent
}

// NotifyFunc adapts a bus into a store notifier: each committed batch is
// published event by event, and failures are logged rather than returned
// so observers can never interfere with a mutation.
func NotifyFunc(bus Bus, logger *slog.Logger) func([]*board.AuditEvent) {
	return func(events []*board.AuditEvent) {
		for _, ev := range events {
			if err := bus.Publish(context.Background(), ev); err != nil {
				logger.Warn("event notification failed", "type", ev.Type, "error", err)
			}
		}
	}
}
