// Package notification defines transition notification events and the
// dispatcher contract to the external notification channel.
package notification

import (
	"context"
	"fmt"
	"time"

	"opname/internal/core/id"
	"opname/internal/core/security"
)

// Event describes one workflow transition to be announced.
// Events are built by the lifecycle controller at the moment of a
// transition and handed to the dispatcher immediately; the
// reconciliation core does not retain them.
type Event struct {
	SenderRole    security.Role `json:"senderRole"`
	RecipientRole security.Role `json:"recipientRole"`
	BranchID      string        `json:"branchId,omitempty"`
	Body          string        `json:"body"`
	SubmissionID  *id.ID        `json:"submissionId,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Dispatcher sends an event to the external notification channel.
//
// Sends are fire-once: no automatic retries. Callers needing guaranteed
// delivery implement their own retry on top.
type Dispatcher interface {
	Send(ctx context.Context, event Event) error
}

// RecipientFor resolves who must be told about a transition initiated
// by the given role. Reviews flow up to the branch operational head;
// anything the branch head does is escalated to inventory admin.
func RecipientFor(sender security.Role) security.Role {
	switch sender {
	case security.RoleBranchHead:
		return security.RoleInventoryAdmin
	case security.RoleInventoryAdmin:
		return security.RoleOwner
	default:
		return security.RoleBranchHead
	}
}

// TransitionBody renders the standard message for a status change.
func TransitionBody(status string, branchID string, itemCount, problemCount int) string {
	return fmt.Sprintf(
		"stock check for branch %s is now %s: %d item(s), %d discrepancy(ies)",
		branchID, status, itemCount, problemCount,
	)
}
