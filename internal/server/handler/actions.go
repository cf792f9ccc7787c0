package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/slotengine/internal/action"
	"github.com/alanyoungcy/slotengine/internal/domain"
)

// ActionRunner submits slot actions from one wallet. *action.Engine
// satisfies it.
type ActionRunner interface {
	Claim(ctx context.Context, s domain.NormalizedSlot, req action.ClaimRequest) (common.Hash, error)
	Takeover(ctx context.Context, s domain.NormalizedSlot, req action.TakeoverRequest) (common.Hash, error)
	Renew(ctx context.Context, s domain.NormalizedSlot, taxPeriods uint64) (common.Hash, error)
	Forfeit(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error)
	Poke(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error)
	UpdateCreative(ctx context.Context, s domain.NormalizedSlot, adURI string) (common.Hash, error)
	Pending() (domain.ActionKind, bool)
	From() common.Address
}

// SlotLookup resolves the current state of one slot.
type SlotLookup interface {
	Slot(ctx context.Context, addr common.Address) (domain.NormalizedSlot, error)
}

// ActionLog reads recorded actions.
type ActionLog interface {
	GetByID(ctx context.Context, id string) (domain.ActionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ActionRecord, error)
}

// ActionHandler serves the action endpoints.
type ActionHandler struct {
	slots       SlotLookup
	engine      ActionRunner
	log         ActionLog
	recentLimit int
	logger      *slog.Logger
}

// NewActionHandler creates an ActionHandler. A nil engine means no wallet is
// configured and every action answers 503. A nil log disables the recent
// listing.
func NewActionHandler(slots SlotLookup, engine ActionRunner, log ActionLog, recentLimit int, logger *slog.Logger) *ActionHandler {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	return &ActionHandler{
		slots:       slots,
		engine:      engine,
		log:         log,
		recentLimit: recentLimit,
		logger:      logHandler(logger, "actions"),
	}
}

// valuationRequest is the body of claim and takeover.
type valuationRequest struct {
	ValuationWei string  `json:"valuation_wei"`
	Periods      *uint64 `json:"periods"`
	AdURI        string  `json:"ad_uri"`
}

type renewRequest struct {
	Periods *uint64 `json:"periods"`
}

type creativeRequest struct {
	AdURI string `json:"ad_uri"`
}

// ActionResponse is returned once an action's transaction is confirmed.
type ActionResponse struct {
	Action domain.ActionKind `json:"action"`
	Slot   string            `json:"slot"`
	From   string            `json:"from"`
	TxHash string            `json:"tx_hash"`
}

func periodsOrOne(p *uint64) uint64 {
	if p == nil {
		return 1
	}
	return *p
}

// Claim occupies a vacant slot.
// POST /api/slots/{address}/claim {"valuation_wei","periods","ad_uri"}
func (h *ActionHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var body valuationRequest
	h.serve(w, r, domain.ActionClaim, &body, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		valuation, err := parseWei("valuation_wei", body.ValuationWei)
		if err != nil {
			return common.Hash{}, err
		}
		return h.engine.Claim(ctx, s, action.ClaimRequest{
			Valuation:  valuation,
			TaxPeriods: periodsOrOne(body.Periods),
			AdURI:      body.AdURI,
		})
	})
}

// Takeover displaces the current owner.
// POST /api/slots/{address}/takeover {"valuation_wei","periods","ad_uri"}
func (h *ActionHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	var body valuationRequest
	h.serve(w, r, domain.ActionTakeover, &body, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		valuation, err := parseWei("valuation_wei", body.ValuationWei)
		if err != nil {
			return common.Hash{}, err
		}
		return h.engine.Takeover(ctx, s, action.TakeoverRequest{
			NewValuation: valuation,
			TaxPeriods:   periodsOrOne(body.Periods),
			AdURI:        body.AdURI,
		})
	})
}

// Renew prepays more tax periods.
// POST /api/slots/{address}/renew {"periods"}
func (h *ActionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var body renewRequest
	h.serve(w, r, domain.ActionRenew, &body, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		return h.engine.Renew(ctx, s, periodsOrOne(body.Periods))
	})
}

// Forfeit vacates an owned slot.
// POST /api/slots/{address}/forfeit
func (h *ActionHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.ActionForfeit, nil, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		return h.engine.Forfeit(ctx, s)
	})
}

// Poke triggers on-chain settlement.
// POST /api/slots/{address}/poke
func (h *ActionHandler) Poke(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, domain.ActionPoke, nil, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		return h.engine.Poke(ctx, s)
	})
}

// UpdateCreative replaces an owned slot's ad creative.
// POST /api/slots/{address}/creative {"ad_uri"}
func (h *ActionHandler) UpdateCreative(w http.ResponseWriter, r *http.Request) {
	var body creativeRequest
	h.serve(w, r, domain.ActionUpdateCreative, &body, func(ctx context.Context, s domain.NormalizedSlot) (common.Hash, error) {
		return h.engine.UpdateCreative(ctx, s, body.AdURI)
	})
}

// serve decodes body (when non-nil), resolves the slot and runs fn, which
// blocks until the transaction settles or the request is abandoned.
func (h *ActionHandler) serve(w http.ResponseWriter, r *http.Request, kind domain.ActionKind, body any,
	fn func(context.Context, domain.NormalizedSlot) (common.Hash, error)) {
	if h.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "no wallet configured")
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if body != nil {
		if err := decodeJSON(r, body); err != nil {
			writeEngineError(w, r, h.logger, err)
			return
		}
	}
	s, err := h.slots.Slot(r.Context(), addr)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}

	hash, err := fn(r.Context(), s)
	if err != nil {
		h.logger.InfoContext(r.Context(), "action rejected",
			slog.String("action", string(kind)),
			slog.String("slot", addr.Hex()),
			slog.String("error", err.Error()),
		)
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Action: kind,
		Slot:   addr.Hex(),
		From:   h.engine.From().Hex(),
		TxHash: hash.Hex(),
	})
}

// GetPending reports the in-flight action, if any.
// GET /api/actions/pending
func (h *ActionHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusOK, map[string]any{"pending": false, "wallet": nil})
		return
	}
	kind, pending := h.engine.Pending()
	resp := map[string]any{
		"pending": pending,
		"wallet":  h.engine.From().Hex(),
	}
	if pending {
		resp["action"] = kind
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRecent returns the newest recorded actions.
// GET /api/actions/recent?limit=
func (h *ActionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeError(w, http.StatusServiceUnavailable, "action log requires persistence")
		return
	}
	limit := h.recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 500)
		}
	}
	recs, err := h.log.ListRecent(r.Context(), limit)
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	if recs == nil {
		recs = []domain.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": recs, "count": len(recs)})
}

// GetAction returns one recorded action.
// GET /api/actions/{id}
func (h *ActionHandler) GetAction(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		writeError(w, http.StatusServiceUnavailable, "action log requires persistence")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid action id")
		return
	}
	rec, err := h.log.GetByID(r.Context(), id.String())
	if err != nil {
		writeEngineError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
