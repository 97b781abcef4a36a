package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/markerpose/internal/httputil"
	"github.com/banshee-data/markerpose/internal/monitoring"
)

// Webhook forwards updates that finalized at least one marker to an HTTP
// endpoint as JSON.
type Webhook struct {
	URL    string
	Client httputil.HTTPClient // nil uses http.DefaultClient
}

// Run posts updates from the channel until it is closed or ctx is
// cancelled. Delivery failures are logged and the update is skipped.
func (w *Webhook) Run(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if len(u.Markers) == 0 {
				continue
			}
			if err := w.Post(ctx, u); err != nil {
				monitoring.Logf("webhook: cycle %d: %v", u.Cycle, err)
			}
		}
	}
}

// Post delivers a single update.
func (w *Webhook) Post(ctx context.Context, u Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post update: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("post update: unexpected status %d", resp.StatusCode)
	}
	return nil
}
