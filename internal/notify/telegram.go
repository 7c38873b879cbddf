package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Telegram delivers notifications over the Telegram Bot API and forwards
// operator messages as replies. When chatID is zero it is auto-detected
// from the first incoming message, matching how operators bootstrap the
// bot by sending /start.
type Telegram struct {
	api *tgbotapi.BotAPI
	log zerolog.Logger

	mu     sync.Mutex
	chatID int64

	replies chan Reply
	done    chan struct{}
	closed  sync.Once
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	t := &Telegram{
		api:     api,
		log:     log,
		chatID:  chatID,
		replies: make(chan Reply, 16),
		done:    make(chan struct{}),
	}
	go t.poll()
	return t, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	t.mu.Lock()
	chatID := t.chatID
	t.mu.Unlock()
	if chatID == 0 {
		return fmt.Errorf("telegram chat not established yet; send /start to the bot")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	sent := make(chan error, 1)
	go func() {
		_, err := t.api.Send(msg)
		sent <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-sent:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}

func (t *Telegram) Replies() <-chan Reply { return t.replies }

func (t *Telegram) Close() {
	t.closed.Do(func() {
		close(t.done)
		t.api.StopReceivingUpdates()
	})
}

// WaitForChat blocks until a chat is established (operator messaged the
// bot) or the deadline passes.
func (t *Telegram) WaitForChat(ctx context.Context, timeout time.Duration) error {
	deadline := time.After(timeout)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		t.mu.Lock()
		id := t.chatID
		t.mu.Unlock()
		if id != 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("no telegram message received within %s; send /start to the bot", timeout)
		case <-tick.C:
		}
	}
}

func (t *Telegram) poll() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-t.done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(update.Message)
		}
	}
}

func (t *Telegram) handleMessage(m *tgbotapi.Message) {
	t.mu.Lock()
	if t.chatID == 0 {
		t.chatID = m.Chat.ID
		t.log.Info().Int64("chat_id", m.Chat.ID).Msg("telegram chat auto-detected")
	}
	known := m.Chat.ID == t.chatID
	t.mu.Unlock()
	if !known {
		return
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}

	if strings.EqualFold(text, "/start") {
		reply := tgbotapi.NewMessage(m.Chat.ID,
			"Visa appointment bot is running. You will be notified when a qualifying date opens up. Use /status for the current state.")
		if _, err := t.api.Send(reply); err != nil {
			t.log.Warn().Err(err).Msg("telegram /start reply failed")
		}
		return
	}

	select {
	case t.replies <- Reply{Text: text, At: time.Now()}:
	default:
		t.log.Warn().Str("text", text).Msg("reply channel full, dropping operator message")
	}
}
