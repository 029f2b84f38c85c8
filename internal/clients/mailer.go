package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const mailSendEndpoint = "/v1/messages"

var ErrMailerDisabled = errors.New("mail gateway not configured")

type MailConfig struct {
	GatewayURL string
	Token      string
	From       string
	Timeout    time.Duration
}

type Mail struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// MailClient hands messages to the club's mail gateway over HTTP. Without a
// gateway URL every Send fails with ErrMailerDisabled.
type MailClient struct {
	baseURL    string
	token      string
	from       string
	httpClient *http.Client
}

func NewMailClient(cfg MailConfig) *MailClient {
	if cfg.GatewayURL == "" {
		slog.Info("mail client disabled", "reason", "MAIL_GATEWAY_URL not configured")
		return &MailClient{from: cfg.From}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MailClient{
		baseURL:    cfg.GatewayURL,
		token:      cfg.Token,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *MailClient) Enabled() bool {
	return c.httpClient != nil
}

func (c *MailClient) Send(ctx context.Context, m Mail) error {
	if !c.Enabled() {
		return ErrMailerDisabled
	}
	if m.From == "" {
		m.From = c.from
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	endpoint, err := url.JoinPath(c.baseURL, mailSendEndpoint)
	if err != nil {
		return fmt.Errorf("mail gateway url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("mail gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
