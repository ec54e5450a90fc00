// Package notification fans monitor events out to the configured
// channels: SMTP email, Telegram and generic webhooks.
package notification

// detail is one label/value row in a notification body. Highlighted
// rows get the accent color in the email rendering.
type detail struct {
	Label     string
	Value     string
	Highlight bool
}

// event is a fully rendered logical notification, ready for any
// channel.
type event struct {
	Title     string
	Summary   string
	Kind      string // info, warning or success; picks the accent color
	Details   []detail
	Text      string // plain-text rendering for Telegram and webhooks
	AccountID string

	// Webhook template variables. Empty means not applicable.
	Traffic    string
	MaxTraffic string
}

func (e event) trafficVar() string {
	if e.Traffic == "" {
		return "N/A"
	}
	return e.Traffic
}

func (e event) maxTrafficVar() string {
	if e.MaxTraffic == "" {
		return "N/A"
	}
	return e.MaxTraffic
}
