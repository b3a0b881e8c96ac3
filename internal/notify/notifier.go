// Package notify delivers market lifecycle alerts (epoch resolutions, expiry,
// overdue oracle reports) to operator channels such as Telegram and Discord.
// Which event kinds reach the channels is driven by configuration.
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
	"strings"
	"time"
)

// sendTimeout bounds a single delivery attempt to one channel.
const sendTimeout = 10 * time.Second

// Sender delivers one alert to one channel.
type Sender interface {
	Send(ctx context.Context, title, body string) error
	Name() string
}

// Notifier fans an alert out to every configured sender. An event allowlist
// from configuration decides which event kinds are forwarded; an empty
// allowlist forwards everything.
type Notifier struct {
	senders []Sender
	allowed map[string]struct{}
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify forwards the alert to every sender when the event kind passes the
// allowlist. Each sender gets its own timeout; one channel failing does not
// stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, body string) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[event]; !ok {
			return nil
		}
	}
	if len(n.senders) == 0 {
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.Send(sendCtx, title, body)
		cancel()
		if err != nil {
			n.logger.WarnContext(ctx, "alert delivery failed",
				slog.String("channel", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// postJSON is the shared webhook delivery used by the concrete senders.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
