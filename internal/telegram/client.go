// Package telegram sends calculation notifications through the Telegram Bot
// API: progress milestones of long running tasks, the summary of a finished
// run and the error that aborted a failed one.
//
// Messages use MarkdownV2 formatting and are delivered with linear-backoff
// retries. Delivery failures of progress messages are logged, never returned,
// so a flaky network cannot abort a calculation.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/quakedisagg/internal/disagg"
	"github.com/rewired-gh/quakedisagg/internal/logger"
)

// sender is the part of tgbotapi.BotAPI used by Client
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications. It implements progress.Sink and is
// safe for concurrent use.
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	progressStep   int

	mu         sync.Mutex
	milestones map[string]int // Last milestone sent per task
}

// NewClient creates a new Telegram client. A progressStep of 0 disables
// progress messages.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, progressStep int) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return newClient(bot, chatIDInt, maxRetries, retryDelayBase, progressStep), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration, progressStep int) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	if progressStep < 0 {
		progressStep = 0
	}
	return &Client{
		bot:            bot,
		chatID:         chatID,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		progressStep:   progressStep,
		milestones:     make(map[string]int),
	}
}

// Progress implements progress.Sink. A message is sent each time a task
// reaches a multiple of the progress step. A percentage lower than the last
// one seen, or any report after 100%, means the task started over.
func (c *Client) Progress(task string, percent int) {
	if c.progressStep == 0 {
		return
	}

	c.mu.Lock()
	last, seen := c.milestones[task]
	if seen && (percent < last || last == 100) {
		last, seen = 0, false
	}
	milestone := percent / c.progressStep * c.progressStep
	if percent == 100 {
		milestone = 100
	}
	due := milestone > 0 && (!seen || milestone > last)
	if due {
		c.milestones[task] = milestone
	} else if !seen {
		c.milestones[task] = 0
	}
	c.mu.Unlock()

	if !due {
		return
	}
	msg := fmt.Sprintf("⏳ `%s` %s complete", escapeCode(task), escapeMarkdownV2(fmt.Sprintf("%d%%", milestone)))
	if err := c.send(msg); err != nil {
		logger.Warn("Failed to send progress notification: %v", err)
	}
}

// SendSummary reports a completed run
func (c *Client) SendSummary(jobName string, sum disagg.Summary, elapsed time.Duration) error {
	return c.send(formatSummary(jobName, sum, elapsed))
}

// SendFailure reports the error that aborted a run
func (c *Client) SendFailure(jobName string, runErr error) error {
	return c.send(formatFailure(jobName, runErr))
}

// send delivers a MarkdownV2 message with retry
func (c *Client) send(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelayBase * time.Duration(i+1))
		}
	}

	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

func formatSummary(jobName string, sum disagg.Summary, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ *Disaggregation complete*: %s\n\n", escapeMarkdownV2(jobName))
	fmt.Fprintf(&b, "📍 Sites: %d \\(%d skipped\\)\n", sum.Sites, sum.SkippedSites)
	fmt.Fprintf(&b, "🧮 Matrices saved: %d\n", sum.Matrices)
	fmt.Fprintf(&b, "⏱ Elapsed: %s\n", escapeMarkdownV2(formatDuration(elapsed)))
	return b.String()
}

func formatFailure(jobName string, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Disaggregation failed*: %s\n\n", escapeMarkdownV2(jobName))
	fmt.Fprintf(&b, "```\n%s\n```", escapeCode(runErr.Error()))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// escapeCode escapes the characters that are special inside a MarkdownV2 code block
func escapeCode(text string) string {
	r := strings.NewReplacer("\\", "\\\\", "`", "\\`")
	return r.Replace(text)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
