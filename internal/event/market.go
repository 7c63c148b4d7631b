package event

// MarketUpdate carries market timing metadata from the upstream
// market-data collaborator. For 15-minute Up/Down windows EndTime is
// typically StartTime + 900.
type MarketUpdate struct {
	MarketSlug     string
	StartTime      int64 // unix seconds
	EndTime        int64 // unix seconds
	Resolved       bool
	WinningOutcome Outcome // OutcomeUnknown until resolved
}
