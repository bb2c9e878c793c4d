// Package notify escalates critical anti-cheat alerts to administrators
// through shoutrrr service URLs (Slack, Telegram, e-mail, generic webhooks...).
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/anatolykoptev/go-ecoguard"
)

// ErrNoURLs is returned when a notifier is built without any service URL.
var ErrNoURLs = errors.New("notify: at least one service URL is required")

const defaultTimeout = 10 * time.Second

// Shoutrrr sends alert batches to every configured service URL.
// It implements ecoguard.Notifier.
type Shoutrrr struct {
	urls   []string
	sender *router.ServiceRouter
}

var _ ecoguard.Notifier = (*Shoutrrr)(nil)

// NewShoutrrr validates urls and builds one sender for all of them.
// A non-positive timeout uses the default of 10s.
func NewShoutrrr(timeout time.Duration, urls ...string) (*Shoutrrr, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// shoutrrr errors may echo the URL, which carries tokens.
		return nil, fmt.Errorf("notify: invalid service URL: %s", redact(err.Error(), urls))
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	sender.Timeout = timeout
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &Shoutrrr{urls: slices.Clone(urls), sender: sender}, nil
}

// Notify sends one message describing alerts. An empty batch is a no-op.
func (s *Shoutrrr) Notify(ctx context.Context, alerts []ecoguard.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	params.SetTitle(Title(alerts))

	var errs []error
	for _, e := range s.sender.Send(Format(alerts), &params) {
		if e != nil {
			errs = append(errs, errors.New(redact(e.Error(), s.urls)))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// Title is the message title for a batch of alerts.
func Title(alerts []ecoguard.Alert) string {
	if len(alerts) == 1 {
		return "ecoguard: 1 critical anti-cheat alert"
	}
	return fmt.Sprintf("ecoguard: %d critical anti-cheat alerts", len(alerts))
}

// Format renders alerts as a plain-text message body, one alert per line.
func Format(alerts []ecoguard.Alert) string {
	var b strings.Builder
	for i, a := range alerts {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", a.Severity, a.Type, a.Message)
		if a.UserID != "" {
			fmt.Fprintf(&b, " user=%s", a.UserID)
		}
		if a.DeviceFingerprint != "" {
			fmt.Fprintf(&b, " device=%s", a.DeviceFingerprint)
		}
		fmt.Fprintf(&b, " at=%s id=%s", a.CreatedAt.UTC().Format(time.RFC3339), a.ID)
	}
	return b.String()
}

// redact removes every configured URL from msg.
func redact(msg string, urls []string) string {
	for _, u := range urls {
		if u != "" {
			msg = strings.ReplaceAll(msg, u, "[redacted]")
		}
	}
	return msg
}
