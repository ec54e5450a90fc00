package notification

import (
	"context"
	"os"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

// SendTestEmail verifies the SMTP settings by mailing a sample notice
// to the given address.
func (d *Dispatcher) SendTestEmail(ctx context.Context, set accountdomain.EmailSettings, to string) error {
	now := d.clk.Now().Format("2006-01-02 15:04:05")
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}

	e := event{
		Title:   "测试邮件",
		Summary: "SMTP 配置验证成功",
		Kind:    "success",
		Details: []detail{
			{Label: "测试结果", Value: "成功 (Success)"},
			{Label: "发送时间", Value: now},
			{Label: "服务器", Value: host},
		},
	}
	html, err := renderEmail(e, d.clk.Now())
	if err != nil {
		return err
	}
	if to != "" {
		set.To = to
	}
	return d.email.Send(ctx, set, "CDT Monitor Test", html)
}

// SendTestTelegram pushes a sample message through the configured bot.
func (d *Dispatcher) SendTestTelegram(ctx context.Context, set accountdomain.TelegramSettings) error {
	text := "【CDT Monitor】测试推送\n这是一条来自 Telegram 的测试消息。\n发送时间: " +
		d.clk.Now().Format("2006-01-02 15:04:05")
	return d.telegram.Send(ctx, set, text)
}

// SendTestWebhook fires the configured webhook with a sample payload.
func (d *Dispatcher) SendTestWebhook(ctx context.Context, set accountdomain.WebhookSettings) error {
	e := event{
		Title: "测试推送",
		Text: "【CDT Monitor】测试推送\n这是一条来自 Webhook 的测试消息。\n发送时间: " +
			d.clk.Now().Format("2006-01-02 15:04:05"),
		AccountID: "test_account_id",
		Traffic:   "0",
	}
	return d.webhook.Send(ctx, set, e)
}
