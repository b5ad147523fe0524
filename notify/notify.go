// Package notify delivers best-effort desktop notifications for channels that
// went live. Delivery failures are logged, never propagated: a missed popup
// must not disturb the polling pipeline.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gen2brain/beeep"
)

// Thumbnail dimensions substituted into the {width}/{height} template.
const (
	iconWidth  = 70
	iconHeight = 70
)

// Notification is one desktop notification.
type Notification struct {
	Title   string
	Message string
	IconURL string
	Silent  bool
}

// Notifier is the notification surface. Desktop is the real implementation;
// tests substitute a recorder.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LiveNotification builds the standard "went live" notification for a channel.
func LiveNotification(displayName, streamTitle, thumbnailURL string, silent bool) Notification {
	return Notification{
		Title:   fmt.Sprintf("%s is now live!", displayName),
		Message: streamTitle,
		IconURL: IconURL(thumbnailURL),
		Silent:  silent,
	}
}

// IconURL substitutes the thumbnail size template with the badge-sized
// dimensions.
func IconURL(thumbnailURL string) string {
	s := strings.ReplaceAll(thumbnailURL, "{width}", fmt.Sprintf("%d", iconWidth))
	return strings.ReplaceAll(s, "{height}", fmt.Sprintf("%d", iconHeight))
}

// Desktop emits platform desktop notifications via beeep.
type Desktop struct {
	// HTTPClient fetches notification icons; nil uses a short-timeout default.
	HTTPClient *http.Client
}

// Notify shows the notification. Silent notifications use the plain banner;
// audible ones use the alerting variant. The icon is fetched to a temp file
// best-effort; a failed fetch just drops the icon.
func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	icon := ""
	if n.IconURL != "" {
		if path, err := d.fetchIcon(ctx, n.IconURL); err != nil {
			slog.Debug("notification icon fetch failed", slog.Any("err", err), slog.String("url", n.IconURL))
		} else {
			icon = path
		}
	}
	if n.Silent {
		return beeep.Notify(n.Title, n.Message, icon)
	}
	return beeep.Alert(n.Title, n.Message, icon)
}

func (d *Desktop) fetchIcon(ctx context.Context, url string) (string, error) {
	hc := d.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 3 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("icon fetch failed: %s", resp.Status)
	}
	f, err := os.CreateTemp("", "livelist-icon-*.jpg")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close icon file", slog.Any("err", err))
		}
	}()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return f.Name(), nil
}
