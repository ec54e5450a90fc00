package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
)

// WebhookSender calls an arbitrary HTTP endpoint, expanding the
// #TITLE#, #MSG#, #ACCOUNT#, #TRAFFIC# and #MAX_TRAFFIC# template
// variables in the URL and body with encoding appropriate to where
// they land.
type WebhookSender struct {
	log     *zap.Logger
	clk     clock.Clock
	client  *http.Client
	timeout time.Duration
}

func NewWebhookSender(log *zap.Logger, clk clock.Clock) *WebhookSender {
	return &WebhookSender{
		log:     log.Named("notify.webhook"),
		clk:     clk,
		client:  &http.Client{Timeout: 10 * time.Second},
		timeout: 10 * time.Second,
	}
}

func (s *WebhookSender) Send(ctx context.Context, set accountdomain.WebhookSettings, e event) error {
	if set.URL == "" {
		return fmt.Errorf("webhook url is empty")
	}

	vars := map[string]string{
		"#TITLE#":       e.Title,
		"#MSG#":         e.Text,
		"#ACCOUNT#":     e.AccountID,
		"#TRAFFIC#":     e.trafficVar(),
		"#MAX_TRAFFIC#": e.maxTrafficVar(),
	}

	var req *http.Request
	var err error
	if set.Method == http.MethodGet {
		req, err = s.buildGet(ctx, set, e, vars)
	} else {
		req, err = s.buildPost(ctx, set, e, vars)
	}
	if err != nil {
		return err
	}

	if err := applyHeaders(req, set.Headers); err != nil {
		s.log.Warn("ignoring malformed webhook headers", zap.Error(err))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *WebhookSender) buildGet(ctx context.Context, set accountdomain.WebhookSettings, e event, vars map[string]string) (*http.Request, error) {
	finalURL := substitute(set.URL, vars, url.QueryEscape)

	// Bare URL with no template variables and no query: fall back to
	// the default title/text/time query string.
	if set.Body == "" && !strings.Contains(finalURL, "?") && !strings.Contains(set.URL, "#") {
		q := url.Values{}
		q.Set("title", e.Title)
		q.Set("text", e.Text)
		q.Set("time", s.clk.Now().Format("2006-01-02 15:04:05"))
		finalURL += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	return req, nil
}

func (s *WebhookSender) buildPost(ctx context.Context, set accountdomain.WebhookSettings, e event, vars map[string]string) (*http.Request, error) {
	finalURL := substitute(set.URL, vars, url.QueryEscape)

	var body string
	contentType := "application/json"

	switch {
	case set.Body != "" && set.RequestType == "FORM":
		contentType = "application/x-www-form-urlencoded"
		body = substitute(set.Body, vars, url.QueryEscape)
		// A JSON object in a FORM body is a common misconfiguration;
		// convert it instead of posting raw JSON with a form type.
		var decoded map[string]any
		if err := json.Unmarshal([]byte(body), &decoded); err == nil {
			form := url.Values{}
			for k, v := range decoded {
				form.Set(k, fmt.Sprint(v))
			}
			body = form.Encode()
		}
	case set.Body != "":
		body = substitute(set.Body, vars, jsonEscape)
	default:
		now := s.clk.Now().Format("2006-01-02 15:04:05")
		if set.RequestType == "FORM" {
			contentType = "application/x-www-form-urlencoded"
			form := url.Values{}
			form.Set("title", e.Title)
			form.Set("text", e.Text)
			form.Set("time", now)
			body = form.Encode()
		} else {
			encoded, err := json.Marshal(map[string]string{"title": e.Title, "text": e.Text, "time": now})
			if err != nil {
				return nil, fmt.Errorf("webhook payload: %w", err)
			}
			body = string(encoded)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, finalURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func substitute(tmpl string, vars map[string]string, encode func(string) string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, k, encode(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// jsonEscape encodes a value for injection inside a JSON string
// literal: the encoded string minus its surrounding quotes.
func jsonEscape(v string) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(encoded[1 : len(encoded)-1])
}

func applyHeaders(req *http.Request, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(raw), &headers); err != nil {
		return fmt.Errorf("parse headers: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}
