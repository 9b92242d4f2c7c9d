package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linkbrief/linkbrief/internal/history"
	"github.com/linkbrief/linkbrief/internal/llm"
	"github.com/linkbrief/linkbrief/internal/models"
	"github.com/linkbrief/linkbrief/internal/pipeline"
	"github.com/linkbrief/linkbrief/internal/queue"
	"github.com/linkbrief/linkbrief/internal/quota"
	"github.com/linkbrief/linkbrief/internal/telegraph"
)

const callbackRetry = "retry"

// providerLabels maps quota-file provider keys to the display prefix used
// on the model keyboard.
var providerLabels = map[string]string{
	llm.ProviderGemini:     "Gemini: ",
	llm.ProviderGroq:       "Groq: ",
	llm.ProviderOpenRouter: "OpenRouter: ",
}

// Deps are the collaborators the bot drives.
type Deps struct {
	Queue      *queue.Queue
	Auth       *AuthStore
	Quota      *quota.Store
	Prompts    *llm.Library
	History    *history.Store
	Telegraph  *telegraph.Client
	OpenRouter *llm.OpenRouter
}

type Bot struct {
	api       *tgbotapi.BotAPI
	password  string
	queue     *queue.Queue
	auth      *AuthStore
	quota     *quota.Store
	prompts   *llm.Library
	history   *history.Store
	telegraph *telegraph.Client
	credits   *llm.OpenRouter
	prefs     *prefsStore
	logger    *slog.Logger

	mu          sync.Mutex
	lastFailed  map[int64]*models.Task
	lastSummary map[int64]pipeline.Outcome
}

func NewBot(token, password string, deps Deps, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Bot{
		api:         api,
		password:    password,
		queue:       deps.Queue,
		auth:        deps.Auth,
		quota:       deps.Quota,
		prompts:     deps.Prompts,
		history:     deps.History,
		telegraph:   deps.Telegraph,
		credits:     deps.OpenRouter,
		prefs:       newPrefsStore(),
		logger:      logger,
		lastFailed:  make(map[int64]*models.Task),
		lastSummary: make(map[int64]pipeline.Outcome),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("telegram bot started", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.Text != "":
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch {
	case strings.HasPrefix(text, "/start"):
		b.handleStart(chatID)
		return
	case strings.HasPrefix(text, "/auth"):
		b.handleAuth(chatID, text)
		return
	}

	if !b.authorized(chatID) {
		b.sendPlain(chatID, "This bot is private. Authorize with /auth <password>.")
		return
	}

	switch {
	case strings.HasPrefix(text, "/help"):
		b.handleHelp(chatID)
	case strings.HasPrefix(text, "/model"):
		b.sendModelKeyboard(chatID)
	case strings.HasPrefix(text, "/prompt"):
		b.sendPromptKeyboard(chatID)
	case strings.HasPrefix(text, "/websearch"):
		p := b.prefs.update(chatID, func(p *chatPrefs) { p.WebSearch = !p.WebSearch })
		b.sendPlain(chatID, "Web search: "+onOff(p.WebSearch))
	case strings.HasPrefix(text, "/urlcontext"):
		p := b.prefs.update(chatID, func(p *chatPrefs) { p.URLContext = !p.URLContext })
		b.sendPlain(chatID, "URL context: "+onOff(p.URLContext))
	case strings.HasPrefix(text, "/quota"):
		b.handleQuota(ctx, chatID)
	case strings.HasPrefix(text, "/history"):
		b.handleHistory(ctx, chatID)
	case b.isModelChoice(text):
		b.prefs.update(chatID, func(p *chatPrefs) { p.Model = text })
		b.sendPlain(chatID, "Model set to "+text, withKeyboardRemoval())
	case b.prompts != nil && b.prompts.Has(text):
		b.prefs.update(chatID, func(p *chatPrefs) { p.Variant = text })
		b.sendPlain(chatID, "Prompt set to "+text, withKeyboardRemoval())
	default:
		if url := firstURL(text); url != "" {
			b.submitURL(chatID, url)
			return
		}
		b.maybeQuestion(chatID, text)
	}
}

func (b *Bot) handleStart(chatID int64) {
	welcome := `Send me a link and I'll fetch the article and summarize it. 📰

Commands:
/model - pick the model
/prompt - pick the summary style
/websearch - toggle web search for the model
/urlcontext - toggle passing the raw URL to the model
/quota - current usage against the free-tier limits
/history - your recent summaries
/help - this text

After a summary, just type a question to ask about the article.`

	if b.password != "" && !b.authorized(chatID) {
		welcome += "\n\nThis bot is private. Authorize first: /auth <password>"
	}
	b.sendPlain(chatID, welcome)
}

func (b *Bot) handleHelp(chatID int64) {
	b.handleStart(chatID)
}

func (b *Bot) handleAuth(chatID int64, text string) {
	if b.password == "" {
		b.sendPlain(chatID, "No password is configured; you're already in.")
		return
	}
	parts := strings.Fields(text)
	if len(parts) != 2 || parts[1] != b.password {
		b.sendPlain(chatID, "Wrong password.")
		return
	}
	if err := b.auth.Authorize(chatID); err != nil {
		b.logger.Error("failed to persist authorization", "chat_id", chatID, "error", err)
		b.sendPlain(chatID, "Couldn't save the authorization, try again.")
		return
	}
	b.sendPlain(chatID, "Authorized. Send me a link!")
}

func (b *Bot) authorized(chatID int64) bool {
	if b.password == "" {
		return true
	}
	return b.auth.IsAuthorized(chatID)
}

func (b *Bot) submitURL(chatID int64, url string) {
	task := models.NewTask(chatID, url, b.prefs.options(chatID))
	b.queue.Submit(task)
}

// maybeQuestion treats free text as a question about the chat's last
// summarized article.
func (b *Bot) maybeQuestion(chatID int64, text string) {
	b.mu.Lock()
	last, ok := b.lastSummary[chatID]
	b.mu.Unlock()
	if !ok || last.Article == nil {
		b.sendPlain(chatID, "Send me an article link first, then ask away.")
		return
	}

	task := models.NewQuestionTask(chatID, text, last.Article, last.Summary, b.prefs.options(chatID))
	b.queue.Submit(task)
}

func (b *Bot) handleCallback(q *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.logger.Debug("failed to answer callback", "error", err)
	}
	if q.Message == nil || q.Data != callbackRetry {
		return
	}
	chatID := q.Message.Chat.ID

	b.mu.Lock()
	failed, ok := b.lastFailed[chatID]
	delete(b.lastFailed, chatID)
	b.mu.Unlock()
	if !ok {
		b.sendPlain(chatID, "Nothing to retry.")
		return
	}

	b.queue.Submit(models.NewTask(chatID, failed.URL, failed.Options))
}

func (b *Bot) sendModelKeyboard(chatID int64) {
	var rows [][]tgbotapi.KeyboardButton
	for _, provider := range []string{llm.ProviderGemini, llm.ProviderGroq, llm.ProviderOpenRouter} {
		for _, model := range b.quota.Models(provider) {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(providerLabels[provider]+model)))
		}
	}
	if len(rows) == 0 {
		b.sendPlain(chatID, "No models available yet; run a quota sync first.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, "Pick a model:")
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send model keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) sendPromptKeyboard(chatID int64) {
	var rows [][]tgbotapi.KeyboardButton
	for _, variant := range b.prompts.Variants() {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(variant)))
	}

	msg := tgbotapi.NewMessage(chatID, "Pick a summary style:")
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.OneTimeKeyboard = true
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send prompt keyboard", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) isModelChoice(text string) bool {
	for _, prefix := range providerLabels {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

func (b *Bot) handleQuota(ctx context.Context, chatID int64) {
	var sb strings.Builder
	sb.WriteString("Usage over the last minute:\n")
	for _, provider := range []string{llm.ProviderGemini, llm.ProviderGroq, llm.ProviderOpenRouter} {
		names := b.quota.Models(provider)
		if len(names) == 0 {
			continue
		}
		sb.WriteString("\n" + strings.TrimSuffix(providerLabels[provider], ": ") + "\n")
		for _, model := range names {
			limits, _ := b.quota.Limits(provider, model)
			used := b.quota.UsageLastMinute(provider, model)
			if limits.RequestsPerMinute > 0 {
				fmt.Fprintf(&sb, "  %s: %d/%d rpm\n", model, used, limits.RequestsPerMinute)
			} else if used > 0 {
				fmt.Fprintf(&sb, "  %s: %d calls\n", model, used)
			}
		}
	}

	if b.credits != nil {
		if credits, err := b.credits.Credits(ctx); err == nil {
			sb.WriteString("\nOpenRouter credits: " + credits)
		}
	}
	b.sendPlain(chatID, sb.String())
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	if b.history == nil {
		b.sendPlain(chatID, "History is not enabled.")
		return
	}
	entries, err := b.history.List(ctx, chatID, 10)
	if err != nil {
		b.logger.Error("failed to list history", "chat_id", chatID, "error", err)
		b.sendPlain(chatID, "Couldn't read the history.")
		return
	}
	if len(entries) == 0 {
		b.sendPlain(chatID, "No summaries yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Recent summaries:\n")
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.URL
		}
		fmt.Fprintf(&sb, "\n• %s\n  %s\n", title, e.URL)
	}
	b.sendPlain(chatID, sb.String())
}

func (b *Bot) rememberOutcome(chatID int64, outcome pipeline.Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSummary[chatID] = outcome
}

func (b *Bot) rememberFailedTask(chatID int64, task *models.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailed[chatID] = task
}

type sendOption func(*tgbotapi.MessageConfig)

func withKeyboardRemoval() sendOption {
	return func(msg *tgbotapi.MessageConfig) {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
}

func (b *Bot) sendPlain(chatID int64, text string, opts ...sendOption) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	for _, opt := range opts {
		opt(&msg)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send telegram message", "chat_id", chatID, "error", err)
	}
}

// firstURL returns the first http(s) token in the text, or empty.
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return field
		}
	}
	return ""
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
