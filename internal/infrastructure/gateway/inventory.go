package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"opname/internal/core/apperror"
	"opname/internal/domain/snapshot"
	"opname/pkg/retry"
)

// InventoryClient fetches branch stock snapshots from the inventory store.
// The read path is retryable; the shared retry policy is applied here,
// not at call sites.
type InventoryClient struct {
	client *client
	policy retry.Policy
}

var _ snapshot.Provider = (*InventoryClient)(nil)

// NewInventoryClient creates an inventory store client.
func NewInventoryClient(cfg Config, policy retry.Policy) *InventoryClient {
	policy.Retryable = apperror.IsRetryable
	return &InventoryClient{
		client: newClient(cfg, "inventory store"),
		policy: policy,
	}
}

// FetchBranchStock implements snapshot.Provider.
//
// The inventory store returns every active item assigned to the branch,
// zero-stock items included. An empty list is a valid response (a branch
// with no items); a null data field is not.
func (c *InventoryClient) FetchBranchStock(ctx context.Context, branchID string) ([]snapshot.ItemSnapshot, error) {
	if branchID == "" {
		return nil, apperror.NewValidation("branch is required")
	}

	path := fmt.Sprintf("/api/branches/%s/stock", url.PathEscape(branchID))

	var items []snapshot.ItemSnapshot
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		items = nil
		return c.client.do(ctx, http.MethodGet, path, nil, &items, true)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}
