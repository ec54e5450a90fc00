package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/clock"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
	"github.com/smallbiznis/trafficwarden/internal/observability/metrics"
)

type mailChannel interface {
	Send(ctx context.Context, set accountdomain.EmailSettings, subject, htmlBody string) error
}

type textChannel interface {
	Send(ctx context.Context, set accountdomain.TelegramSettings, text string) error
}

type hookChannel interface {
	Send(ctx context.Context, set accountdomain.WebhookSettings, e event) error
}

// Dispatcher renders monitor events and fans them out to every enabled
// channel. A channel failure never blocks the others; outcomes are
// aggregated into a DispatchResult.
type Dispatcher struct {
	log      *zap.Logger
	clk      clock.Clock
	email    mailChannel
	telegram textChannel
	webhook  hookChannel
}

var _ domain.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(log *zap.Logger, clk clock.Clock, email *EmailSender, telegram *TelegramSender, webhook *WebhookSender) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("notify"),
		clk:      clk,
		email:    email,
		telegram: telegram,
		webhook:  webhook,
	}
}

// NotifySchedule reports a schedule-driven start or stop. Schedule
// notifications are globally gated by their own setting.
func (d *Dispatcher) NotifySchedule(ctx context.Context, set accountdomain.Settings, actionType string, account accountdomain.Account, description string) domain.DispatchResult {
	if !set.ScheduleEmail {
		return domain.DispatchResult{}
	}
	if description == "" {
		description = "根据预设时间表自动执行。"
	}

	now := d.clk.Now().Format("2006-01-02 15:04:05")
	masked := account.MaskedID()
	title := "定时任务: " + actionType

	e := event{
		Title:   title,
		Summary: fmt.Sprintf("您的实例已执行%s操作", actionType),
		Kind:    "info",
		Details: []detail{
			{Label: "账号 ID", Value: masked},
			{Label: "执行动作", Value: actionType, Highlight: true},
			{Label: "执行时间", Value: now},
			{Label: "详情说明", Value: description},
		},
		Text: fmt.Sprintf("【CDT Monitor】%s\n账号 ID: %s\n执行动作: %s\n执行时间: %s\n详情说明: %s",
			title, masked, actionType, now, description),
		AccountID: account.AccessKeyID,
	}
	return d.dispatch(ctx, set, e)
}

// SendTrafficWarning reports a threshold breach or a breaker shutdown.
func (d *Dispatcher) SendTrafficWarning(ctx context.Context, set accountdomain.Settings, accountKey string, traffic, percent float64, statusText string, threshold float64) domain.DispatchResult {
	masked := accountdomain.MaskKey(accountKey)
	title := "流量告警 - " + statusText
	trafficStr := fmt.Sprintf("%v", traffic)
	thresholdStr := fmt.Sprintf("%v", threshold)

	e := event{
		Title:   title,
		Summary: "检测到流量异常或达到阈值",
		Kind:    "warning",
		Details: []detail{
			{Label: "账号 ID", Value: masked},
			{Label: "当前流量", Value: trafficStr + " GB"},
			{Label: "使用率", Value: fmt.Sprintf("%v%%", percent), Highlight: true},
			{Label: "设定阈值", Value: thresholdStr + "%"},
			{Label: "当前状态", Value: statusText},
		},
		Text: fmt.Sprintf("【CDT Monitor】%s\n账号 ID: %s\n当前流量: %v GB\n使用率: %v%%\n设定阈值: %v%%\n当前状态: %s",
			title, masked, traffic, percent, threshold, statusText),
		AccountID:  accountKey,
		Traffic:    trafficStr,
		MaxTraffic: thresholdStr,
	}
	return d.dispatch(ctx, set, e)
}

func (d *Dispatcher) dispatch(ctx context.Context, set accountdomain.Settings, e event) domain.DispatchResult {
	var result domain.DispatchResult

	if set.Email.Enabled && set.Email.To != "" {
		result.Attempted++
		if err := d.sendEmail(ctx, set.Email, e); err != nil {
			result.Errors = append(result.Errors, "Email: "+err.Error())
			metrics.Monitor().IncNotifySend("email", false)
		} else {
			result.Succeeded++
			metrics.Monitor().IncNotifySend("email", true)
		}
	}

	if set.Telegram.Enabled && set.Telegram.Token != "" && set.Telegram.ChatID != "" {
		result.Attempted++
		if err := d.telegram.Send(ctx, set.Telegram, e.Text); err != nil {
			result.Errors = append(result.Errors, "TG: "+err.Error())
			metrics.Monitor().IncNotifySend("telegram", false)
		} else {
			result.Succeeded++
			metrics.Monitor().IncNotifySend("telegram", true)
		}
	}

	if set.Webhook.Enabled && set.Webhook.URL != "" {
		result.Attempted++
		if err := d.webhook.Send(ctx, set.Webhook, e); err != nil {
			result.Errors = append(result.Errors, "WH: "+err.Error())
			metrics.Monitor().IncNotifySend("webhook", false)
		} else {
			result.Succeeded++
			metrics.Monitor().IncNotifySend("webhook", true)
		}
	}

	if len(result.Errors) > 0 {
		d.log.Warn("notification channels failed",
			zap.String("title", e.Title),
			zap.Int("attempted", result.Attempted),
			zap.Int("succeeded", result.Succeeded),
			zap.Strings("errors", result.Errors),
		)
	}
	return result
}

func (d *Dispatcher) sendEmail(ctx context.Context, set accountdomain.EmailSettings, e event) error {
	html, err := renderEmail(e, d.clk.Now())
	if err != nil {
		return err
	}
	return d.email.Send(ctx, set, "CDT通知 - "+e.Title, html)
}
