// Package snapshot defines the contract to the external inventory store.
// The reconciliation core consumes branch stock snapshots; it never
// writes stock itself.
package snapshot

import (
	"context"
)

// ItemSnapshot is one item's system-recorded stock at snapshot time.
type ItemSnapshot struct {
	ItemCode    string `json:"itemCode"`
	ItemName    string `json:"itemName"`
	Category    string `json:"category"`
	SystemStock int64  `json:"systemStock"`
	Unit        string `json:"unit"`
}

// Provider returns the current system stock for a branch.
//
// Implementations must return every active item assigned to the branch,
// zero-stock items included, or fail with a typed error. A partial list
// is never an acceptable substitute for an error.
type Provider interface {
	FetchBranchStock(ctx context.Context, branchID string) ([]ItemSnapshot, error)
}
