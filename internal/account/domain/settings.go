package domain

import (
	"strconv"
	"strings"
	"time"
)

// ThresholdAction selects what the circuit breaker does at the
// threshold.
type ThresholdAction string

const (
	ThresholdStopAndNotify ThresholdAction = "stop_and_notify"
	ThresholdNotifyOnly    ThresholdAction = "notify_only"
)

// Settings keys as stored in the settings table.
const (
	KeyTrafficThreshold = "traffic_threshold"
	KeyShutdownMode     = "shutdown_mode"
	KeyThresholdAction  = "threshold_action"
	KeyKeepAlive        = "keep_alive"
	KeyAPIInterval      = "api_interval"

	KeyScheduleEmail = "enable_schedule_email"

	KeyEmailEnabled  = "notify_email_enabled"
	KeyEmailTo       = "notify_email"
	KeyEmailHost     = "notify_host"
	KeyEmailPort     = "notify_port"
	KeyEmailUsername = "notify_username"
	KeyEmailPassword = "notify_password"
	KeyEmailSecure   = "notify_secure"

	KeyTelegramEnabled   = "notify_tg_enabled"
	KeyTelegramToken     = "notify_tg_token"
	KeyTelegramChatID    = "notify_tg_chat_id"
	KeyTelegramProxyType = "notify_tg_proxy_type"
	KeyTelegramProxyURL  = "notify_tg_proxy_url"
	KeyTelegramProxyIP   = "notify_tg_proxy_ip"
	KeyTelegramProxyPort = "notify_tg_proxy_port"
	KeyTelegramProxyUser = "notify_tg_proxy_user"
	KeyTelegramProxyPass = "notify_tg_proxy_pass"

	KeyWebhookEnabled     = "notify_wh_enabled"
	KeyWebhookURL         = "notify_wh_url"
	KeyWebhookMethod      = "notify_wh_method"
	KeyWebhookRequestType = "notify_wh_request_type"
	KeyWebhookHeaders     = "notify_wh_headers"
	KeyWebhookBody        = "notify_wh_body"
)

const DefaultShutdownMode = "KeepCharging"

// Settings is the policy snapshot for one reconciliation pass. It is
// loaded once per pass and immutable for its duration.
type Settings struct {
	TrafficThreshold float64
	ShutdownMode     string
	ThresholdAction  ThresholdAction
	KeepAlive        bool
	APIInterval      time.Duration

	ScheduleEmail bool
	Email         EmailSettings
	Telegram      TelegramSettings
	Webhook       WebhookSettings
}

type EmailSettings struct {
	Enabled  bool
	To       string
	Host     string
	Port     int
	Username string
	Password string
	Secure   string // "ssl", "tls" or "" for plaintext
}

type TelegramSettings struct {
	Enabled   bool
	Token     string
	ChatID    string
	ProxyType string // "none", "custom" or "socks5"
	ProxyURL  string
	ProxyIP   string
	ProxyPort string
	ProxyUser string
	ProxyPass string
}

type WebhookSettings struct {
	Enabled     bool
	URL         string
	Method      string // GET or POST
	RequestType string // JSON or FORM
	Headers     string // JSON object of extra headers
	Body        string // template, may reference #TITLE# etc.
}

// ParseSettings builds a Settings snapshot from the raw key/value rows,
// applying the historical defaults for absent keys.
func ParseSettings(values map[string]string) Settings {
	return Settings{
		TrafficThreshold: lookupFloat(values, KeyTrafficThreshold, 95),
		ShutdownMode:     lookupString(values, KeyShutdownMode, DefaultShutdownMode),
		ThresholdAction:  parseThresholdAction(values[KeyThresholdAction]),
		KeepAlive:        lookupBool(values, KeyKeepAlive, false),
		APIInterval:      time.Duration(lookupInt(values, KeyAPIInterval, 600)) * time.Second,
		ScheduleEmail:    lookupBool(values, KeyScheduleEmail, false),
		Email: EmailSettings{
			Enabled:  lookupBool(values, KeyEmailEnabled, true),
			To:       values[KeyEmailTo],
			Host:     values[KeyEmailHost],
			Port:     lookupInt(values, KeyEmailPort, 465),
			Username: values[KeyEmailUsername],
			Password: values[KeyEmailPassword],
			Secure:   lookupString(values, KeyEmailSecure, "ssl"),
		},
		Telegram: TelegramSettings{
			Enabled:   lookupBool(values, KeyTelegramEnabled, false),
			Token:     values[KeyTelegramToken],
			ChatID:    values[KeyTelegramChatID],
			ProxyType: lookupString(values, KeyTelegramProxyType, "none"),
			ProxyURL:  values[KeyTelegramProxyURL],
			ProxyIP:   values[KeyTelegramProxyIP],
			ProxyPort: values[KeyTelegramProxyPort],
			ProxyUser: values[KeyTelegramProxyUser],
			ProxyPass: values[KeyTelegramProxyPass],
		},
		Webhook: WebhookSettings{
			Enabled:     lookupBool(values, KeyWebhookEnabled, false),
			URL:         values[KeyWebhookURL],
			Method:      strings.ToUpper(lookupString(values, KeyWebhookMethod, "GET")),
			RequestType: strings.ToUpper(lookupString(values, KeyWebhookRequestType, "JSON")),
			Headers:     values[KeyWebhookHeaders],
			Body:        values[KeyWebhookBody],
		},
	}
}

func parseThresholdAction(raw string) ThresholdAction {
	if ThresholdAction(raw) == ThresholdNotifyOnly {
		return ThresholdNotifyOnly
	}
	return ThresholdStopAndNotify
}

func lookupString(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func lookupBool(values map[string]string, key string, def bool) bool {
	v, ok := values[key]
	if !ok || v == "" {
		return def
	}
	return v == "1" || strings.EqualFold(v, "true")
}

func lookupInt(values map[string]string, key string, def int) int {
	v, ok := values[key]
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func lookupFloat(values map[string]string, key string, def float64) float64 {
	v, ok := values[key]
	if !ok {
		return def
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return parsed
}
