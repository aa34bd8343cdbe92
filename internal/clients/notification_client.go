package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotificationClient sends transactional messages via the notification
// collaborator's API.
type NotificationClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewNotificationClient creates a new notification client
func NewNotificationClient(baseURL string) *NotificationClient {
	return &NotificationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type transactionalMessageRequest struct {
	EventType        string            `json:"eventType"`
	RecipientUserIDs []string          `json:"recipientUserIds"`
	TemplateMetadata map[string]string `json:"templateMetadata,omitempty"`
}

// SendTransactionalMessage asks the notification collaborator to deliver a
// templated message to the given users. Template and channel selection happen
// on the collaborator side.
func (c *NotificationClient) SendTransactionalMessage(ctx context.Context, eventType string, recipientUserIDs []string, templateMetadata map[string]string) error {
	payload, err := json.Marshal(transactionalMessageRequest{
		EventType:        eventType,
		RecipientUserIDs: recipientUserIDs,
		TemplateMetadata: templateMetadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}
