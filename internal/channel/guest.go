package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"staybot/internal/domain"
)

// Guest is the guest-facing Telegram bot. Inbound texts and payment proof
// photos are published on the bus; replies addressed to the guest source
// are delivered back over Telegram.
type Guest struct {
	telegramSender

	token      string
	allowFrom  []int64
	propertyID string
	proofDir   string

	bus    domain.MessageBus
	client *http.Client

	// thinking placeholder message ids, per chat, deleted when the real
	// reply goes out
	thinkingMu sync.Mutex
	thinking   map[int64]int
}

type GuestConfig struct {
	Token      string
	AllowFrom  []string
	ParseMode  string
	PropertyID string // property guests of this bot converse about
	ProofDir   string
	Logger     *slog.Logger
}

func NewGuest(cfg GuestConfig) *Guest {
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return &Guest{
		telegramSender: telegramSender{parseMode: cfg.ParseMode, logger: cfg.Logger},
		token:          cfg.Token,
		allowFrom:      parseAllowList(cfg.AllowFrom),
		propertyID:     cfg.PropertyID,
		proofDir:       cfg.ProofDir,
		client:         &http.Client{Timeout: 60 * time.Second},
		thinking:       make(map[int64]int),
	}
}

func (g *Guest) Name() string { return domain.SourceGuest }

// Start connects to Telegram and begins polling for updates.
func (g *Guest) Start(ctx context.Context, bus domain.MessageBus) error {
	g.bus = bus

	bot, err := tgbotapi.NewBotAPI(g.token)
	if err != nil {
		return fmt.Errorf("guest bot init: %w", err)
	}
	g.bot = bot
	g.logger.Info("guest bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound(domain.SourceGuest, func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			g.logger.Error("invalid chat ID for guest outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		g.sendMessage(chatID, msg.Text)
		g.deleteThinking(chatID)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	g.logger.Info("guest bot polling started")

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("guest bot stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			g.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled, and
// calling StopReceivingUpdates twice panics.
func (g *Guest) Stop() error { return nil }

func (g *Guest) Send(ctx context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	g.sendMessage(id, text)
	return nil
}

func (g *Guest) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !allowedUser(g.allowFrom, userID) {
		g.logger.Warn("unauthorized guest user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		return
	}

	var imageRef string
	text := update.Message.Text

	if len(update.Message.Photo) > 0 {
		// Largest size is last; caption rides alongside the photo.
		photo := update.Message.Photo[len(update.Message.Photo)-1]
		path, err := g.downloadPhoto(ctx, photo.FileID)
		if err != nil {
			g.logger.Error("payment proof download failed", "err", err, "user_id", userID)
			g.sendMessage(chatID, "Sorry, I couldn't read your photo. Please try sending it again.")
			return
		}
		imageRef = path
		text = update.Message.Caption
	}

	if text == "" && imageRef == "" {
		return
	}

	g.logger.Info("guest message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
		"has_photo", imageRef != "",
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = g.bot.Send(typing)

	// Plain conversational texts hit the LLM, which can be slow. Park a
	// placeholder so the guest knows the message landed.
	if imageRef == "" && !strings.HasPrefix(strings.TrimSpace(text), "/") {
		g.sendThinking(chatID)
	}

	g.bus.Publish(domain.InboundMessage{
		Source:     domain.SourceGuest,
		ChatID:     strconv.FormatInt(chatID, 10),
		ActorID:    strconv.FormatInt(userID, 10),
		PropertyID: g.propertyID,
		Text:       text,
		ImageRef:   imageRef,
		Timestamp:  time.Unix(int64(update.Message.Date), 0),
	})
}

func (g *Guest) sendThinking(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "🤔 Let me check that for you...")
	sent, err := g.bot.Send(msg)
	if err != nil {
		return
	}
	g.thinkingMu.Lock()
	g.thinking[chatID] = sent.MessageID
	g.thinkingMu.Unlock()
}

func (g *Guest) deleteThinking(chatID int64) {
	g.thinkingMu.Lock()
	msgID, ok := g.thinking[chatID]
	if ok {
		delete(g.thinking, chatID)
	}
	g.thinkingMu.Unlock()
	if !ok {
		return
	}
	if _, err := g.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		g.logger.Debug("could not delete thinking message", "err", err)
	}
}

// downloadPhoto fetches a Telegram photo into the proof directory and
// returns the local path.
func (g *Guest) downloadPhoto(ctx context.Context, fileID string) (string, error) {
	url, err := g.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file url: %w", err)
	}

	if err := os.MkdirAll(g.proofDir, 0o755); err != nil {
		return "", fmt.Errorf("create proof dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch photo: status %d", resp.StatusCode)
	}

	path := filepath.Join(g.proofDir, uuid.NewString()+".jpg")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create proof file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write proof file: %w", err)
	}
	return path, nil
}
