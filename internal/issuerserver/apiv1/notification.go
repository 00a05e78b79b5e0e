package apiv1

import (
	"context"

	"vc/pkg/openid4vci"
)

// Notification implements the notification endpoint. Persisting
// notification outcomes is caller-owned state outside this demo's scope;
// here it is just logged.
func (c *Client) Notification(ctx context.Context, req *openid4vci.NotificationRequest) *openid4vci.Error {
	switch req.Event {
	case "credential_accepted", "credential_failure", "credential_deleted":
	default:
		return &openid4vci.Error{Err: openid4vci.InvalidNotificationRequest, ErrorDescription: "unsupported event"}
	}

	c.log.Info("credential notification", "notification_id", req.NotificationID, "event", req.Event, "description", req.EventDescription)

	return nil
}
