package core

// Classification of invoiced amounts against rolled-up cost.
const (
	Exact Classification = "exact"
	Under Classification = "under" // billed less than cost, still owed
	Over  Classification = "over"  // billed more than cost
)

type Classification string

// MilestoneTotals is the rollup of a project's costs. It is derived on demand
// and never persisted.
type MilestoneTotals struct {
	Total         int64            `json:"total"`
	ByMilestoneID map[string]int64 `json:"byMilestoneId"`
	// Unassigned is the part of Total not attributed to any milestone.
	Unassigned int64 `json:"unassigned"`
}

// Reconciliation compares invoiced payments with the project cost.
type Reconciliation struct {
	TotalInvoicedCents int64          `json:"totalInvoicedCents"`
	Variance           int64          `json:"variance"`
	Classification     Classification `json:"classification"`
}

// Classify maps a variance in cents to its classification.
func Classify(variance int64) Classification {
	switch {
	case variance < 0:
		return Under
	case variance > 0:
		return Over
	default:
		return Exact
	}
}
