package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"staybot/internal/domain"
)

// Host is the host-facing Telegram bot. Hosts receive payment proofs for
// approval and reply with plain yes/no decisions.
type Host struct {
	telegramSender

	token     string
	allowFrom []int64

	bus domain.MessageBus
}

type HostConfig struct {
	Token     string
	AllowFrom []string
	ParseMode string
	Logger    *slog.Logger
}

func NewHost(cfg HostConfig) *Host {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Host{
		telegramSender: telegramSender{parseMode: cfg.ParseMode, logger: cfg.Logger},
		token:          cfg.Token,
		allowFrom:      parseAllowList(cfg.AllowFrom),
	}
}

func (h *Host) Name() string { return domain.SourceHost }

func (h *Host) Start(ctx context.Context, bus domain.MessageBus) error {
	h.bus = bus

	bot, err := tgbotapi.NewBotAPI(h.token)
	if err != nil {
		return fmt.Errorf("host bot init: %w", err)
	}
	h.bot = bot
	h.logger.Info("host bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound(domain.SourceHost, func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			h.logger.Error("invalid chat ID for host outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		if msg.ImageRef != "" {
			if err := h.sendPhoto(chatID, msg.Text, msg.ImageRef); err != nil {
				h.logger.Error("host photo send failed, falling back to text", "err", err)
				h.sendMessage(chatID, msg.Text)
			}
			return
		}
		h.sendMessage(chatID, msg.Text)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	h.logger.Info("host bot polling started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("host bot stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			h.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
func (h *Host) Stop() error { return nil }

func (h *Host) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	h.sendMessage(id, text)
	return nil
}

// SendPhoto delivers a local image with a caption.
func (h *Host) SendPhoto(ctx context.Context, chatID string, caption string, path string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	return h.sendPhoto(id, caption, path)
}

func (h *Host) sendPhoto(chatID int64, caption string, path string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := h.bot.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (h *Host) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !allowedUser(h.allowFrom, userID) {
		h.logger.Warn("unauthorized host user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	text := update.Message.Text
	if text == "" {
		return
	}

	h.logger.Info("host message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
	)

	h.bus.Publish(domain.InboundMessage{
		Source:    domain.SourceHost,
		ChatID:    strconv.FormatInt(chatID, 10),
		ActorID:   strconv.FormatInt(userID, 10),
		Text:      text,
		Timestamp: time.Unix(int64(update.Message.Date), 0),
	})
}
