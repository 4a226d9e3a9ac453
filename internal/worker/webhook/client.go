// Package webhook notifies the caller's endpoint once a workflow's assets
// are published.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "captionflow/internal/pkg/errors"
)

// Notification is the body POSTed to the webhook.
type Notification struct {
	VideoURL     string `json:"videoUrl"`
	AudioURL     string `json:"audioUrl,omitempty"`
	SubtitlesURL string `json:"subtitlesUrl"`
}

type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Notify POSTs n to target with renderVideo=true added to the query. A non-2xx
// answer is WEBHOOK_REJECTED; transport failures are UNAVAILABLE.
func (c *HTTPClient) Notify(ctx context.Context, target string, n Notification) error {
	endpoint, err := withRenderFlag(target)
	if err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return apperrors.Wrap(err, "webhook.notify", "encode notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeValidation, "webhook.notify", "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "webhook.notify", "webhook unreachable")
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		e := apperrors.WebhookRejected(res.StatusCode)
		e.Op = "webhook.notify"
		return e
	}
	return nil
}

func withRenderFlag(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", apperrors.ValidationField("webhookUrl", "webhook url must be absolute").
			WithField("value", target)
	}
	q := u.Query()
	q.Set("renderVideo", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
