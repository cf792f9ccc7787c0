package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

type recordingNotifier struct {
	events   []string
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, message string) error {
	n.events = append(n.events, event)
	n.messages = append(n.messages, message)
	return n.err
}

func lapsedBoard(canForfeit bool) domain.Board {
	return domain.Board{
		Active: []domain.ActiveSlotData{{
			Address:    activeAddr.Hex(),
			Name:       "Sidebar",
			Owner:      ownerAddr.Hex(),
			CanForfeit: canForfeit,
		}},
	}
}

func TestLapseWatcherAlertsOncePerLapse(t *testing.T) {
	n := &recordingNotifier{}
	w := NewLapseWatcher(n, time.Hour, testLogger())
	ctx := context.Background()

	w.ObserveBoard(ctx, lapsedBoard(true))
	w.ObserveBoard(ctx, lapsedBoard(true))
	require.Len(t, n.events, 1)
	assert.Equal(t, EventSlotForfeitable, n.events[0])
	assert.Contains(t, n.messages[0], "Sidebar")
	assert.Contains(t, n.messages[0], ownerAddr.Hex())

	// recovering clears the alert so the next lapse is announced
	w.ObserveBoard(ctx, lapsedBoard(false))
	w.ObserveBoard(ctx, lapsedBoard(true))
	assert.Len(t, n.events, 2)
}

func TestLapseWatcherForgetsVacatedSlots(t *testing.T) {
	n := &recordingNotifier{}
	w := NewLapseWatcher(n, time.Hour, testLogger())
	ctx := context.Background()

	w.ObserveBoard(ctx, lapsedBoard(true))
	w.ObserveBoard(ctx, domain.Board{Vacant: []domain.VacantSlotData{{Address: activeAddr.Hex()}}})
	w.ObserveBoard(ctx, lapsedBoard(true))
	assert.Len(t, n.events, 2)
}

func TestLapseWatcherNotifyFailureIsNotFatal(t *testing.T) {
	n := &recordingNotifier{err: errors.New("telegram down")}
	w := NewLapseWatcher(n, 0, testLogger())

	assert.NotPanics(t, func() { w.ObserveBoard(context.Background(), lapsedBoard(true)) })
	assert.Len(t, n.events, 1)
}

type boardObserverFunc func(context.Context, domain.Board)

func (f boardObserverFunc) ObserveBoard(ctx context.Context, b domain.Board) { f(ctx, b) }

func TestRefreshNotifiesObservers(t *testing.T) {
	var seen []domain.Board
	svc := NewBoardService(&fakeReader{}, newCatalog(), BoardOptions{
		Observers: []BoardObserver{boardObserverFunc(func(_ context.Context, b domain.Board) {
			seen = append(seen, b)
		})},
		Now: func() time.Time { return time.Unix(1_700_000_000, 0) },
	}, testLogger())

	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Len(t, seen[0].Active, 1)

	failing := NewBoardService(&fakeReader{err: errors.New("rpc down")}, newCatalog(), BoardOptions{
		Observers: []BoardObserver{boardObserverFunc(func(context.Context, domain.Board) {
			t.Fatal("observer called for a failed refresh")
		})},
	}, testLogger())
	_, err = failing.Refresh(context.Background())
	require.Error(t, err)
}
