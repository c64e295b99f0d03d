package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lighter-sdk/internal/config"
	"lighter-sdk/internal/exec"
	"lighter-sdk/internal/session"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

// Telegram posts operator notifications. A disabled notifier accepts and drops
// every message.
type Telegram struct {
	enabled bool
	token   string
	chatID  string
	client  *resty.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL)
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string) *Telegram {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		client:  client,
		log:     log,
	}
}

func (t *Telegram) Enabled() bool {
	return t != nil && t.enabled
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.Enabled() {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": t.chatID, "text": message}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + t.token + "/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode(), strings.TrimSpace(describe(result.Description, resp.String())))
	}
	if !result.OK {
		return fmt.Errorf("telegram send failed: %s", describe(result.Description, "unknown telegram error"))
	}
	return nil
}

// SessionReady announces a completed bootstrap.
func (t *Telegram) SessionReady(ctx context.Context, ready *session.Ready) {
	if !t.Enabled() || ready == nil {
		return
	}
	t.sendLogged(ctx, FormatReady(ready))
}

// AttemptFailed reports a submission the exchange did not accept.
func (t *Telegram) AttemptFailed(ctx context.Context, a exec.Attempt, ticker string) {
	if !t.Enabled() || a.Err == nil {
		return
	}
	t.sendLogged(ctx, FormatAttempt(a, ticker))
}

func (t *Telegram) sendLogged(ctx context.Context, message string) {
	if err := t.Send(ctx, message); err != nil {
		t.log.Warn("telegram alert failed", zap.Error(err))
	}
}

func FormatReady(ready *session.Ready) string {
	return fmt.Sprintf("lighter session ready\naccount %d (%s)\nmarkets %d",
		ready.Account.AccountIndex, ready.Account.L1Address, ready.Registry.Len())
}

func FormatAttempt(a exec.Attempt, ticker string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "lighter %s failed", a.Kind)
	if ticker != "" {
		fmt.Fprintf(&b, " on %s", ticker)
	}
	switch a.Kind {
	case exec.KindCreate:
		side := "buy"
		if a.Create.IsAsk {
			side = "sell"
		}
		fmt.Fprintf(&b, "\n%s market=%d base=%d price=%d coi=%d",
			side, a.Create.MarketIndex, a.Create.BaseAmount, a.Create.Price, a.Create.ClientOrderIndex)
	case exec.KindCancel:
		fmt.Fprintf(&b, "\nmarket=%d order=%d", a.Cancel.MarketIndex, a.Cancel.OrderIndex)
	}
	if a.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", a.Err)
	}
	return b.String()
}

func describe(desc, fallback string) string {
	if d := strings.TrimSpace(desc); d != "" {
		return d
	}
	return fallback
}
