package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"staybot/internal/domain"
)

// Console implements domain.Channel for interactive terminal chat. It plays
// the guest role, so conversations exercise the same path Telegram guests
// take, minus photo uploads.
type Console struct {
	bus        domain.MessageBus
	logger     *slog.Logger
	in         io.Reader
	out        io.Writer
	propertyID string

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type ConsoleConfig struct {
	Logger     *slog.Logger
	In         io.Reader
	Out        io.Writer
	PropertyID string
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Console{
		logger:     cfg.Logger,
		in:         cfg.In,
		out:        cfg.Out,
		propertyID: cfg.PropertyID,
	}
}

func (c *Console) Name() string { return "console" }

// Start runs the interactive REPL and blocks until context is cancelled.
func (c *Console) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound(domain.SourceGuest, func(msg domain.OutboundMessage) {
		c.stopThinking()
		_, _ = fmt.Fprintln(c.out, "\r\033[K") // Clear spinner line
		_, _ = fmt.Fprintln(c.out, "--- StayBot ---")
		_, _ = fmt.Fprintln(c.out, msg.Text)
		_, _ = fmt.Fprintln(c.out, "---------------")
		_, _ = fmt.Fprint(c.out, "You> ")
	})

	_, _ = fmt.Fprintln(c.out, "StayBot console. Type your message and press Enter. Type /quit to exit.")
	_, _ = fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_, _ = fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		c.startThinking()
		c.bus.Publish(domain.InboundMessage{
			Source:     domain.SourceGuest,
			ChatID:     "console",
			ActorID:    "console-guest",
			PropertyID: c.propertyID,
			Text:       line,
			Timestamp:  time.Now(),
		})
	}
}

func (c *Console) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-c.thinkStop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *Console) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

func (c *Console) Stop() error {
	c.stopThinking()
	return nil
}

// Send prints directly, bypassing the bus. Used for startup notices.
func (c *Console) Send(ctx context.Context, chatID string, text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}
