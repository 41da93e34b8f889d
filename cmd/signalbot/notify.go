package main

import (
	"log/slog"

	"nifty-signals/config"
	"nifty-signals/internal/notification"
)

// webhookChat is the destination name used when only a webhook is set.
const webhookChat = "webhook"

// notifiers separates answers to a chat that wrote to the bot from
// digests sent to the configured broadcast destination.
type notifiers struct {
	reply     notification.Notifier
	broadcast notification.Notifier
}

// buildNotifiers answers commands through Telegram whenever a bot token is
// set. Broadcasts go to Telegram only when a chat id is set too, plus the
// webhook when configured.
func buildNotifiers(cfg *config.Config) notifiers {
	var telegram notification.Notifier
	if cfg.TelegramBotToken != "" {
		telegram = notification.NewTelegramNotifier(cfg.TelegramAPIURL, cfg.TelegramBotToken)
	}

	var n notifiers
	if telegram != nil {
		n.reply = telegram
	} else {
		n.reply = notification.NewLogNotifier()
	}

	var sinks notification.Multi
	if cfg.NotificationsEnabled() {
		sinks = append(sinks, telegram)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	switch len(sinks) {
	case 0:
		slog.Warn("no broadcast destination configured, digests will only be logged")
		n.broadcast = notification.NewLogNotifier()
	case 1:
		n.broadcast = sinks[0]
	default:
		n.broadcast = sinks
	}
	return n
}

// broadcastChat returns the scheduled digest destination, or "" when
// broadcasts are off.
func broadcastChat(cfg *config.Config) string {
	if cfg.NotificationsEnabled() {
		return cfg.TelegramChatID
	}
	if cfg.WebhookURL != "" {
		return webhookChat
	}
	return ""
}
