// Package telegram delivers operator notifications to a Telegram chat.
package telegram

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridHedgeBot/internal/ports"
)

const defaultQueueSize = 256

type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Notifier implements ports.Notifier. Notify only queues the text; Run sends it.
// Messages that do not fit in the queue or fail to send are logged and dropped.
type Notifier struct {
	bot    sender
	chatID int64
	logger ports.Logger
	queue  chan string
}

// New connects to the bot API with token.
func New(token string, chatID int64, queueSize int, logger ports.Logger) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram notifier: %w: token and chat id are required", ports.ErrConfigurationError)
	}
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram notifier: %w: %w", ports.ErrConnectionFailed, err)
	}
	return newNotifier(bot, chatID, queueSize, logger), nil
}

func newNotifier(bot sender, chatID int64, queueSize int, logger ports.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Notifier{bot: bot, chatID: chatID, logger: logger, queue: make(chan string, queueSize)}
}

// Notify queues text without blocking.
func (n *Notifier) Notify(ctx context.Context, text string) {
	select {
	case n.queue <- text:
	default:
		n.logger.Warn(ctx, "Telegram: queue full, notification dropped", map[string]interface{}{"text": text})
	}
}

// Run sends queued messages until ctx ends, then flushes what is left.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case text := <-n.queue:
			n.send(ctx, text)
		case <-ctx.Done():
			for {
				select {
				case text := <-n.queue:
					n.send(ctx, text)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) send(ctx context.Context, text string) {
	if _, err := n.bot.Send(tgbot.NewMessage(n.chatID, text)); err != nil {
		n.logger.Error(ctx, err, "Telegram: send failed", map[string]interface{}{"text": text})
	}
}

// LogNotifier writes notifications to the logger. Used when no chat is configured.
type LogNotifier struct {
	Logger ports.Logger
}

func (l LogNotifier) Notify(ctx context.Context, text string) {
	l.Logger.Info(ctx, "Notification", map[string]interface{}{"text": text})
}
