package notification

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender pushes plain-text messages through the Bot API,
// optionally via a custom API base URL or a SOCKS5 proxy.
type TelegramSender struct {
	log     *zap.Logger
	timeout time.Duration
}

func NewTelegramSender(log *zap.Logger) *TelegramSender {
	return &TelegramSender{log: log.Named("notify.telegram"), timeout: 10 * time.Second}
}

func (s *TelegramSender) Send(ctx context.Context, set accountdomain.TelegramSettings, text string) error {
	if set.Token == "" || set.ChatID == "" {
		return fmt.Errorf("telegram token or chat id is empty")
	}

	base := telegramAPIBase
	if set.ProxyType == "custom" && set.ProxyURL != "" {
		base = strings.TrimRight(set.ProxyURL, "/")
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", base, set.Token)

	client, err := s.httpClient(set)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("chat_id", set.ChatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	s.log.Debug("telegram message sent", zap.String("chat_id", set.ChatID))
	return nil
}

func (s *TelegramSender) httpClient(set accountdomain.TelegramSettings) (*http.Client, error) {
	if set.ProxyType != "socks5" || set.ProxyIP == "" || set.ProxyPort == "" {
		return &http.Client{Timeout: s.timeout}, nil
	}

	var auth *proxy.Auth
	if set.ProxyUser != "" || set.ProxyPass != "" {
		auth = &proxy.Auth{User: set.ProxyUser, Password: set.ProxyPass}
	}
	dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort(set.ProxyIP, set.ProxyPort), auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	transport := &http.Transport{}
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.Dial = dialer.Dial
	}
	return &http.Client{Transport: transport, Timeout: s.timeout}, nil
}
