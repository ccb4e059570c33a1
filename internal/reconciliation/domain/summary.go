package domain

import "time"

// CashSummary is the end-of-day reconciliation view for one agent.
// Amounts are minor units in the store currency.
type CashSummary struct {
	AgentID string    `json:"agentId"`
	Date    time.Time `json:"date"`

	// Collected deliveries
	CollectionCount int   `json:"collectionCount"`
	ExpectedTotal   int64 `json:"expectedTotal"`
	CollectedTotal  int64 `json:"collectedTotal"`
	VarianceTotal   int64 `json:"varianceTotal"`

	// COD deliveries delivered but not collected yet
	PendingCount int   `json:"pendingCount"`
	PendingTotal int64 `json:"pendingTotal"`

	// COD deliveries still in flight
	UpcomingCount int   `json:"upcomingCount"`
	UpcomingTotal int64 `json:"upcomingTotal"`
}
