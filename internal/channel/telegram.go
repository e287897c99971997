package channel

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 2
)

// telegramSender holds the send path shared by the guest and host bots:
// chunking, markdown fallback and rate-limit backoff.
type telegramSender struct {
	bot       *tgbotapi.BotAPI
	parseMode string
	logger    *slog.Logger
}

// parseAllowList converts configured user IDs to int64, skipping junk.
func parseAllowList(ids []string) []int64 {
	var allowed []int64
	for _, s := range ids {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	return allowed
}

func allowedUser(allowFrom []int64, userID int64) bool {
	if len(allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *telegramSender) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text) {
		s.sendChunk(chatID, chunk)
	}
}

// splitMessage cuts text into Telegram-sized chunks. Telegram has a 4096
// char limit per message; cuts prefer line breaks and never land inside a
// multi-byte rune.
func splitMessage(text string) []string {
	const maxLen = telegramMaxMsgLen
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try Markdown first, on parse error fall back to plain text, then
// retry with backoff.
func (s *telegramSender) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && s.parseMode != "" {
			msg.ParseMode = s.parseMode
		}
		// On subsequent attempts: send as plain text (parse mode may be malformed).

		_, err := s.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			s.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Markdown parse error on first attempt: immediately retry as plain text.
		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			s.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", s.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := s.bot.Send(plainMsg); err2 == nil {
				return
			}
			// Plain also failed, fall through to backoff loop.
		}

		// Exponential backoff for other transient errors.
		if attempt < telegramMaxSendRetries {
			backoff := time.Duration(attempt+1) * time.Second
			s.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		s.logger.Error("telegram send failed after retries", "err", err, "attempts", telegramMaxSendRetries+1)
	}
}
