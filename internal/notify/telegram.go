// Package notify pushes booking lifecycle notifications to administrators
// over Telegram.
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"zapisnik/internal/events"
	"zapisnik/internal/models"
)

type telegramClient interface {
	Send(tgbotapi.Chattable) (tgbotapi.Message, error)
}

type realTelegramClient struct {
	api *tgbotapi.BotAPI
}

func (c *realTelegramClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

// Notifier sends booking lifecycle messages to the configured admin chats.
type Notifier struct {
	tg     telegramClient
	chats  []int64
	logger *zerolog.Logger
}

// New connects to the Telegram Bot API with token and notifies chats.
func New(token string, debug bool, chats []int64, logger *zerolog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	api.Debug = debug
	logger.Info().Str("bot", api.Self.UserName).Msg("telegram notifier connected")
	return &Notifier{tg: &realTelegramClient{api: api}, chats: chats, logger: logger}, nil
}

// NewWithTelegramClient allows injecting a mocked Telegram client for tests.
func NewWithTelegramClient(tg telegramClient, chats []int64, logger *zerolog.Logger) *Notifier {
	return &Notifier{tg: tg, chats: chats, logger: logger}
}

// Attach subscribes the notifier to booking lifecycle events on bus.
func (n *Notifier) Attach(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCreated, n.onBookingCreated)
	bus.Subscribe(events.TypeBookingCancelled, n.onBookingCancelled)
	bus.Subscribe(events.TypeSlotsGenerated, n.onSlotsGenerated)
}

func (n *Notifier) onBookingCreated(event events.Event) {
	b, ok := event.Payload.(*models.Booking)
	if !ok {
		return
	}
	n.broadcast(fmt.Sprintf("Новая запись: %s %s–%s (пользователь %s)",
		b.Date.Format("02.01.2006"), b.StartTime, b.EndTime, b.UserID))
}

func (n *Notifier) onBookingCancelled(event events.Event) {
	b, ok := event.Payload.(*models.Booking)
	if !ok {
		return
	}
	n.broadcast(fmt.Sprintf("Отмена записи: %s %s–%s (пользователь %s)",
		b.Date.Format("02.01.2006"), b.StartTime, b.EndTime, b.UserID))
}

func (n *Notifier) onSlotsGenerated(event events.Event) {
	slots, ok := event.Payload.([]models.Slot)
	if !ok || len(slots) == 0 {
		return
	}
	first, last := slots[0].Date, slots[len(slots)-1].Date
	var sb strings.Builder
	fmt.Fprintf(&sb, "Сгенерировано слотов: %d (%s – %s)",
		len(slots), first.Format("02.01.2006"), last.Format("02.01.2006"))
	n.broadcast(sb.String())
}

func (n *Notifier) broadcast(text string) {
	for _, chatID := range n.chats {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.tg.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		}
	}
}
