// Package notify turns events into push notifications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidToken is returned when the gateway no longer accepts a device
// token. The token should be forgotten.
var ErrInvalidToken = errors.New("push token no longer valid")

type Message struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// GatewaySender posts messages to an HTTP push gateway.
type GatewaySender struct {
	url    string
	key    string
	client *http.Client
}

func NewGatewaySender(url, key string, timeout time.Duration) *GatewaySender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewaySender{url: url, key: key, client: &http.Client{Timeout: timeout}}
}

var invalidTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"DeviceNotRegistered": true,
	"Unregistered":        true,
}

func (s *GatewaySender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.key != "" {
		req.Header.Set("Authorization", "Bearer "+s.key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrInvalidToken
	case resp.StatusCode >= 300:
		return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, gjson.GetBytes(respBody, "error").String())
	}

	// Some gateways answer 200 and report per-message errors in the body.
	if gjson.ValidBytes(respBody) {
		if code := gjson.GetBytes(respBody, "error").String(); invalidTokenErrors[code] {
			return ErrInvalidToken
		}
		if code := gjson.GetBytes(respBody, "results.0.error").String(); invalidTokenErrors[code] {
			return ErrInvalidToken
		}
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "Push notification", "to", m.To, "title", m.Title, "body", m.Body)
	return nil
}
