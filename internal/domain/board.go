package domain

import "time"

// Status labels shown for a slot.
const (
	StatusOpen    = "Open"
	StatusOwned   = "Owned"
	StatusExpired = "Expired"
	StatusVacant  = "Vacant"
)

// Remaining-time labels used when no duration applies.
const (
	RemainingOverdue = "Overdue"
	RemainingExpired = "Expired"
	RemainingVacant  = "Vacant"
)

// VacantSlotData is the display record for a slot that can be claimed. Wei
// amounts are decimal strings so they survive JSON without precision loss.
type VacantSlotData struct {
	Address         string       `json:"address"`
	Type            SlotType     `json:"type"`
	Name            string       `json:"name"`
	Metadata        SlotMetadata `json:"metadata"`
	StatusLabel     string       `json:"status_label"`
	RemainingUnits  string       `json:"remaining_units"`
	MinValuationWei string       `json:"min_valuation_wei"`
	MinValuationEth string       `json:"min_valuation_eth"`
	BondRate        string       `json:"bond_rate"`
	AnnualTaxRate   string       `json:"annual_tax_rate"`
	TaxPeriod       string       `json:"tax_period"`
	// ClaimQuoteWei is the value required to claim at the minimum valuation
	// for a single tax period.
	ClaimQuoteWei string `json:"claim_quote_wei"`
	ClaimQuoteEth string `json:"claim_quote_eth"`
}

// ActiveSlotData is the display record for an occupied, unexpired slot.
type ActiveSlotData struct {
	Address                 string       `json:"address"`
	Type                    SlotType     `json:"type"`
	Name                    string       `json:"name"`
	Metadata                SlotMetadata `json:"metadata"`
	Owner                   string       `json:"owner"`
	StatusLabel             string       `json:"status_label"`
	RemainingUnits          string       `json:"remaining_units"`
	ValuationWei            string       `json:"valuation_wei"`
	ValuationEth            string       `json:"valuation_eth"`
	LockedValueWei          string       `json:"locked_value_wei"`
	LockedValueEth          string       `json:"locked_value_eth"`
	PrepaidTaxBalanceWei    string       `json:"prepaid_tax_balance_wei"`
	PrepaidTaxBalanceEth    string       `json:"prepaid_tax_balance_eth"`
	MinTakeoverBidWei       string       `json:"min_takeover_bid_wei"`
	MinTakeoverBidEth       string       `json:"min_takeover_bid_eth"`
	AnnualTaxRate           string       `json:"annual_tax_rate"`
	TaxPeriod               string       `json:"tax_period"`
	TaxPaidUntil            uint64       `json:"tax_paid_until"`
	TaxDueInSeconds         uint64       `json:"tax_due_in_seconds"`
	IsOverdue               bool         `json:"is_overdue"`
	CanForfeit              bool         `json:"can_forfeit"`
	CurrentAdURI            string       `json:"current_ad_uri"`
	ContentUpdatesRemaining uint64       `json:"content_updates_remaining"`
}

// SlotMetrics summarizes occupancy across the whole board.
type SlotMetrics struct {
	ActiveCount  int `json:"active_count"`
	VacantCount  int `json:"vacant_count"`
	OverdueCount int `json:"overdue_count"`
}

// BoardTotals are wei sums across all active slots.
type BoardTotals struct {
	PrepaidTaxBalanceWei string `json:"prepaid_tax_balance_wei"`
	PrepaidTaxBalanceEth string `json:"prepaid_tax_balance_eth"`
	LockedValueWei       string `json:"locked_value_wei"`
	LockedValueEth       string `json:"locked_value_eth"`
	ValuationWei         string `json:"valuation_wei"`
	ValuationEth         string `json:"valuation_eth"`
}

// Board is the full display snapshot built from one batch of reads.
type Board struct {
	Vacant      []VacantSlotData `json:"vacant"`
	Active      []ActiveSlotData `json:"active"`
	Metrics     SlotMetrics      `json:"metrics"`
	Totals      BoardTotals      `json:"totals"`
	GeneratedAt time.Time        `json:"generated_at"`
	// Now is the unix second the board was evaluated at.
	Now uint64 `json:"now"`
}
