package gateway

import (
	"context"
	"net/http"

	"opname/internal/domain/notification"
)

// NotifyClient delivers transition events to the notification channel.
// Sends are fire-once by contract: no retry policy here, callers that
// need guaranteed delivery add their own.
type NotifyClient struct {
	client *client
}

var _ notification.Dispatcher = (*NotifyClient)(nil)

// NewNotifyClient creates a notification channel client.
func NewNotifyClient(cfg Config) *NotifyClient {
	return &NotifyClient{client: newClient(cfg, "notification channel")}
}

type notificationRequest struct {
	SenderRole    string `json:"senderRole"`
	RecipientRole string `json:"recipientRole"`
	BranchID      string `json:"branchId,omitempty"`
	Body          string `json:"body"`
	SubmissionID  string `json:"submissionId,omitempty"`
}

// Send implements notification.Dispatcher.
func (c *NotifyClient) Send(ctx context.Context, event notification.Event) error {
	req := notificationRequest{
		SenderRole:    string(event.SenderRole),
		RecipientRole: string(event.RecipientRole),
		BranchID:      event.BranchID,
		Body:          event.Body,
	}
	if event.SubmissionID != nil {
		req.SubmissionID = event.SubmissionID.String()
	}

	return c.client.do(ctx, http.MethodPost, "/api/notifications", req, nil, false)
}
