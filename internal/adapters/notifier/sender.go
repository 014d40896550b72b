// Package notifier delivers backup permission changes to the downstream
// archive service over HTTP.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/relay"
)

const EventBackupPermissionUpdate = "backup_permission_update"

type payload struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	ThreadID      string    `json:"thread_id"`
	UserID        string    `json:"user_id"`
	MessageID     string    `json:"message_id"`
	BackupAllowed bool      `json:"backup_allowed"`
	LicenseName   string    `json:"license_name"`
	ThreadTitle   string    `json:"thread_title"`
}

type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHTTPSender(cfg Config) (*HTTPSender, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%w: notifier endpoint is required", domain.ErrValidation)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPSender{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Send posts one notification. Client errors other than 408 and 429 are
// marked permanent so the relay stops retrying them.
func (s *HTTPSender) Send(ctx context.Context, n relay.Notification) error {
	raw, err := json.Marshal(payload{
		EventType:     EventBackupPermissionUpdate,
		EventID:       n.EventID,
		Timestamp:     n.OccurredAt.UTC(),
		ThreadID:      n.ThreadID,
		UserID:        n.UserID,
		MessageID:     n.MessageID,
		BackupAllowed: n.BackupAllowed,
		LicenseName:   n.LicenseName,
		ThreadTitle:   n.ThreadTitle,
	})
	if err != nil {
		return relay.Permanent(fmt.Errorf("%w: encode payload: %v", domain.ErrNotifier, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return relay.Permanent(fmt.Errorf("%w: build request: %v", domain.ErrNotifier, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Id", n.EventID)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifier, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return fmt.Errorf("%w: endpoint returned %d", domain.ErrNotifier, resp.StatusCode)
	default:
		return relay.Permanent(fmt.Errorf("%w: endpoint rejected notification with %d", domain.ErrNotifier, resp.StatusCode))
	}
}

var _ relay.Sender = (*HTTPSender)(nil)
