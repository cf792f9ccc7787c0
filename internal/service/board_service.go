package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/slotengine/internal/board"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/slot"
)

// SlotReader fetches raw slot state for a batch of refs. *chain.Reader
// satisfies it.
type SlotReader interface {
	ReadSlots(ctx context.Context, refs []domain.SlotRef) ([]domain.RawSlot, error)
}

// Catalog lists the slots to read and supplies their metadata.
// *registry.Registry satisfies it.
type Catalog interface {
	slot.MetadataLookup
	Refs() []domain.SlotRef
}

// BoardObserver is told about every successfully built board.
type BoardObserver interface {
	ObserveBoard(ctx context.Context, b domain.Board)
}

// BoardOptions holds the optional collaborators of a BoardService. Nil
// fields disable the corresponding side effect.
type BoardOptions struct {
	Cache     domain.BoardCache
	Snapshots domain.SlotSnapshotStore
	Archiver  domain.SnapshotArchiver
	Bus       domain.SignalBus
	Coverage  board.CoverageChecker
	Observers []BoardObserver

	// PollInterval defaults to 15 seconds.
	PollInterval time.Duration
	// ArchiveInterval of zero disables archiving.
	ArchiveInterval time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// BoardEvent is published on domain.ChannelSlots after every refresh.
type BoardEvent struct {
	Event   string             `json:"event"`
	Now     uint64             `json:"now"`
	Metrics domain.SlotMetrics `json:"metrics"`
}

// BoardService keeps the latest normalized slots and board in memory and
// refreshes them on a fixed interval.
type BoardService struct {
	reader  SlotReader
	catalog Catalog
	opts    BoardOptions
	logger  *slog.Logger

	refreshMu sync.Mutex // one refresh at a time
	trigger   chan struct{}

	mu          sync.RWMutex
	slots       []domain.NormalizedSlot
	byAddr      map[common.Address]int
	board       domain.Board
	loaded      bool
	lastArchive time.Time
}

// NewBoardService creates a BoardService.
func NewBoardService(reader SlotReader, catalog Catalog, opts BoardOptions, logger *slog.Logger) *BoardService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BoardService{
		reader:  reader,
		catalog: catalog,
		opts:    opts,
		logger:  logger.With(slog.String("component", "board_service")),
		trigger: make(chan struct{}, 1),
	}
}

// Run refreshes immediately, then on every tick or Trigger until ctx ends.
// Refresh failures are logged and retried on the next tick.
func (s *BoardService) Run(ctx context.Context) error {
	s.refreshAndLog(ctx)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		s.refreshAndLog(ctx)
	}
}

// Trigger asks Run for an early refresh without blocking. Requests made while
// one is already queued are merged.
func (s *BoardService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// OnActionSettled adapts Trigger to action.Options.OnSettled.
func (s *BoardService) OnActionSettled(kind domain.ActionKind, addr common.Address, err error) {
	s.logger.Debug("refresh after action",
		slog.String("kind", string(kind)),
		slog.String("slot", addr.Hex()),
		slog.Bool("failed", err != nil),
	)
	s.Trigger()
}

func (s *BoardService) refreshAndLog(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "board refresh failed", slog.String("error", err.Error()))
	}
}

// Refresh reads every catalogued slot, normalizes and builds the board, then
// caches, persists, publishes and (when due) archives it. Only the read is
// fatal. Side-effect failures are logged.
func (s *BoardService) Refresh(ctx context.Context) (domain.Board, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := s.opts.Now()
	raws, err := s.reader.ReadSlots(ctx, s.catalog.Refs())
	if err != nil {
		return domain.Board{}, fmt.Errorf("board_service: read slots: %w", err)
	}

	slots := make([]domain.NormalizedSlot, len(raws))
	byAddr := make(map[common.Address]int, len(raws))
	for i, raw := range raws {
		slots[i] = slot.Normalize(raw, s.catalog)
		byAddr[slots[i].Address] = i
	}

	observed := s.opts.Now()
	now := uint64(max(observed.Unix(), 0))
	b := board.Build(slots, now, s.opts.Coverage)

	s.mu.Lock()
	s.slots = slots
	s.byAddr = byAddr
	s.board = b
	s.loaded = true
	archiveDue := s.opts.Archiver != nil && s.opts.ArchiveInterval > 0 &&
		observed.Sub(s.lastArchive) >= s.opts.ArchiveInterval
	if archiveDue {
		s.lastArchive = observed
	}
	s.mu.Unlock()

	s.sideEffects(ctx, slots, b, observed, archiveDue)
	for _, o := range s.opts.Observers {
		o.ObserveBoard(ctx, b)
	}

	s.logger.InfoContext(ctx, "board refreshed",
		slog.Int("slots", len(slots)),
		slog.Int("active", b.Metrics.ActiveCount),
		slog.Int("vacant", b.Metrics.VacantCount),
		slog.Int("overdue", b.Metrics.OverdueCount),
		slog.Duration("elapsed", s.opts.Now().Sub(start)),
	)
	return b, nil
}

func (s *BoardService) sideEffects(ctx context.Context, slots []domain.NormalizedSlot, b domain.Board, observed time.Time, archive bool) {
	if s.opts.Cache != nil {
		if err := s.opts.Cache.SetBoard(ctx, b); err != nil {
			s.logger.WarnContext(ctx, "cache board failed", slog.String("error", err.Error()))
		}
	}
	if s.opts.Snapshots != nil {
		if err := s.opts.Snapshots.InsertBatch(ctx, slots, observed); err != nil {
			s.logger.WarnContext(ctx, "persist snapshots failed", slog.String("error", err.Error()))
		}
	}
	if s.opts.Bus != nil {
		payload, err := json.Marshal(BoardEvent{Event: "board_refreshed", Now: b.Now, Metrics: b.Metrics})
		if err == nil {
			err = s.opts.Bus.Publish(ctx, domain.ChannelSlots, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "publish board event failed", slog.String("error", err.Error()))
		}
	}
	if archive {
		path, err := s.opts.Archiver.ArchiveBoard(ctx, b, observed)
		if err != nil {
			s.logger.WarnContext(ctx, "archive board failed", slog.String("error", err.Error()))
			return
		}
		s.logger.InfoContext(ctx, "board archived", slog.String("path", path))
	}
}

// Board returns the in-memory board, falling back to the cache and then to
// the archive before the first refresh completes. domain.ErrNotFound means no
// board exists anywhere yet.
func (s *BoardService) Board(ctx context.Context) (domain.Board, error) {
	s.mu.RLock()
	b, ok := s.board, s.loaded
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	if s.opts.Cache != nil {
		b, err := s.opts.Cache.GetBoard(ctx)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "cached board unavailable", slog.String("error", err.Error()))
		}
	}
	if s.opts.Archiver != nil {
		b, err := s.opts.Archiver.LatestBoard(ctx)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "archived board unavailable", slog.String("error", err.Error()))
		}
	}
	return domain.Board{}, fmt.Errorf("board_service: board: %w", domain.ErrNotFound)
}

// Slots returns a copy of the latest normalized slots.
func (s *BoardService) Slots() []domain.NormalizedSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.NormalizedSlot(nil), s.slots...)
}

// Slot returns the latest normalized state of addr. Before the first refresh
// it refreshes synchronously so actions never run against no data.
func (s *BoardService) Slot(ctx context.Context, addr common.Address) (domain.NormalizedSlot, error) {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if !loaded {
		if _, err := s.Refresh(ctx); err != nil {
			return domain.NormalizedSlot{}, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byAddr[addr]
	if !ok {
		return domain.NormalizedSlot{}, fmt.Errorf("board_service: slot %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return s.slots[i], nil
}

// Now returns the current unix second on the service clock.
func (s *BoardService) Now() uint64 {
	return uint64(max(s.opts.Now().Unix(), 0))
}

// Coverage returns the checker boards are built with.
func (s *BoardService) Coverage() board.CoverageChecker {
	return s.opts.Coverage
}
