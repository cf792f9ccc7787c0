package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/notify"
)

// EventSlotForfeitable is the notification event sent when an owned slot's
// coverage has run out and anyone may poke it.
const EventSlotForfeitable = "slot_forfeitable"

// Notifier delivers an alert. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// LapseWatcher alerts when an active slot becomes forfeitable. Each slot
// alerts at most once per window while it stays lapsed, and again as soon as
// it lapses after recovering.
type LapseWatcher struct {
	notifier Notifier
	dedup    *notify.Dedup
	logger   *slog.Logger
}

// NewLapseWatcher creates a LapseWatcher. A window of zero means one day.
func NewLapseWatcher(n Notifier, window time.Duration, logger *slog.Logger) *LapseWatcher {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &LapseWatcher{
		notifier: n,
		dedup:    notify.NewDedup(window),
		logger:   logger.With(slog.String("component", "lapse_watcher")),
	}
}

// ObserveBoard implements BoardObserver.
func (w *LapseWatcher) ObserveBoard(ctx context.Context, b domain.Board) {
	for _, s := range b.Active {
		if !s.CanForfeit {
			w.dedup.Forget(s.Address)
			continue
		}
		if !w.dedup.Allow(s.Address) {
			continue
		}
		msg := fmt.Sprintf("%s (%s) owned by %s has run out of prepaid tax and bond. Poke it to settle.",
			s.Name, s.Address, s.Owner)
		if err := w.notifier.Notify(ctx, EventSlotForfeitable, "Slot forfeitable", msg); err != nil {
			w.logger.WarnContext(ctx, "lapse alert failed",
				slog.String("slot", s.Address),
				slog.String("error", err.Error()),
			)
		}
	}
	for _, s := range b.Vacant {
		w.dedup.Forget(s.Address)
	}
}
