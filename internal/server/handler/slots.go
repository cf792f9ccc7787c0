package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/slotengine/internal/action"
	"github.com/alanyoungcy/slotengine/internal/board"
	"github.com/alanyoungcy/slotengine/internal/domain"
	"github.com/alanyoungcy/slotengine/internal/money"
)

// BoardSource serves the latest board and slot state. *service.BoardService
// satisfies it.
type BoardSource interface {
	Board(ctx context.Context) (domain.Board, error)
	Slot(ctx context.Context, addr common.Address) (domain.NormalizedSlot, error)
	Now() uint64
	Coverage() board.CoverageChecker
}

// SnapshotHistory lists persisted observations of a slot.
type SnapshotHistory interface {
	History(ctx context.Context, address common.Address, opts domain.ListOpts) ([]domain.SlotSnapshot, error)
}

// SlotHandler serves the board and per-slot endpoints.
type SlotHandler struct {
	board   BoardSource
	history SnapshotHistory
	logger  *slog.Logger
}

// NewSlotHandler creates a SlotHandler. history may be nil when persistence
// is disabled.
func NewSlotHandler(src BoardSource, history SnapshotHistory, logger *slog.Logger) *SlotHandler {
	return &SlotHandler{board: src, history: history, logger: logHandler(logger, "slots")}
}

// GetBoard returns the full board.
// GET /api/slots
func (h *SlotHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListVacant returns the claimable slots.
// GET /api/slots/vacant
func (h *SlotHandler) ListVacant(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": b.Vacant, "count": len(b.Vacant)})
}

// ListActive returns the occupied slots.
// GET /api/slots/active
func (h *SlotHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": b.Active, "count": len(b.Active)})
}

// GetMetrics returns occupancy counts and wei totals.
// GET /api/slots/metrics
func (h *SlotHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	b, ok := h.loadBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics":      b.Metrics,
		"totals":       b.Totals,
		"generated_at": b.GeneratedAt,
	})
}

func (h *SlotHandler) loadBoard(w http.ResponseWriter, r *http.Request) (domain.Board, bool) {
	b, err := h.board.Board(r.Context())
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return domain.Board{}, false
	}
	return b, true
}

// SlotDetail is the response of GetSlot. Exactly one of Vacant and Active is
// set.
type SlotDetail struct {
	State  string                 `json:"state"`
	Vacant *domain.VacantSlotData `json:"vacant,omitempty"`
	Active *domain.ActiveSlotData `json:"active,omitempty"`
	Raw    domain.NormalizedSlot  `json:"raw"`
}

// GetSlot returns one slot's display record and normalized state.
// GET /api/slots/{address}
func (h *SlotHandler) GetSlot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSlot(w, r)
	if !ok {
		return
	}
	detail := SlotDetail{Raw: s}
	if s.IsEffectivelyVacant() {
		v := board.BuildVacant(s)
		detail.State, detail.Vacant = "vacant", &v
	} else {
		a := board.BuildActive(s, h.board.Now(), h.board.Coverage())
		detail.State, detail.Active = "active", &a
	}
	writeJSON(w, http.StatusOK, detail)
}

// Quote is the value an action would send, split into its parts.
type Quote struct {
	Action         domain.ActionKind `json:"action"`
	Slot           string            `json:"slot"`
	Valuation      string            `json:"valuation_wei"`
	Periods        uint64            `json:"periods"`
	BondWei        string            `json:"bond_wei"`
	TaxWei         string            `json:"tax_wei"`
	ValueWei       string            `json:"value_wei"`
	ValueEth       string            `json:"value_eth"`
	MinValuation   string            `json:"min_valuation_wei"`
	MinTakeoverBid string            `json:"min_takeover_bid_wei"`
}

// GetQuote prices a claim, takeover or renew without sending anything.
// valuation defaults to the minimum that action accepts and periods to 1.
// GET /api/slots/{address}/quote?action=claim|takeover|renew&valuation=&periods=
func (h *SlotHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	periods, err := parsePeriods(q.Get("periods"))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	kind := domain.ActionKind(q.Get("action"))
	if kind == "" {
		kind = domain.ActionClaim
	}

	s, ok := h.loadSlot(w, r)
	if !ok {
		return
	}

	minBid := action.MinTakeoverBid(s)
	var valuation *big.Int
	switch kind {
	case domain.ActionClaim:
		valuation = money.OrZero(s.MinValuationWei)
	case domain.ActionTakeover:
		valuation = minBid
	case domain.ActionRenew:
		valuation = money.OrZero(s.ValuationWei)
		if valuation.Sign() == 0 {
			valuation = money.OrZero(s.MinValuationWei)
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("action must be claim, takeover or renew, got %q", kind))
		return
	}
	if raw := q.Get("valuation"); raw != "" && kind != domain.ActionRenew {
		if valuation, err = parseWei("valuation", raw); err != nil {
			writeEngineError(w, r, h.logger, err)
			return
		}
	}

	bond := money.Zero()
	value := action.RenewValue(s, periods)
	if kind != domain.ActionRenew {
		bond = money.CalculateBond(valuation, s.BondRateBps)
		value = action.ClaimValue(s, valuation, periods)
	}
	tax := new(big.Int).Sub(value, bond)

	writeJSON(w, http.StatusOK, Quote{
		Action:         kind,
		Slot:           s.Address.Hex(),
		Valuation:      valuation.String(),
		Periods:        periods,
		BondWei:        bond.String(),
		TaxWei:         tax.String(),
		ValueWei:       value.String(),
		ValueEth:       money.FormatEth(value),
		MinValuation:   money.OrZero(s.MinValuationWei).String(),
		MinTakeoverBid: minBid.String(),
	})
}

// SnapshotView is one persisted observation in a history response.
type SnapshotView struct {
	ObservedAt time.Time             `json:"observed_at"`
	Slot       domain.NormalizedSlot `json:"slot"`
}

// GetHistory lists persisted observations of a slot, newest first.
// GET /api/slots/{address}/history?limit=&offset=
func (h *SlotHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "slot history requires persistence")
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	snaps, err := h.history.History(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	out := make([]SnapshotView, len(snaps))
	for i, s := range snaps {
		out[i] = SnapshotView{ObservedAt: s.ObservedAt, Slot: s.Slot}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out, "count": len(out)})
}

func (h *SlotHandler) loadSlot(w http.ResponseWriter, r *http.Request) (domain.NormalizedSlot, bool) {
	addr, err := pathAddress(r)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return domain.NormalizedSlot{}, false
	}
	s, err := h.board.Slot(r.Context(), addr)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return domain.NormalizedSlot{}, false
	}
	return s, true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
