package telegram

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/linkbrief/linkbrief/internal/pipeline"
)

// The Bot is both the pipeline's progress transport and its outcome sink.

func (b *Bot) Send(_ context.Context, chatID int64, text string) (pipeline.MessageRef, error) {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return pipeline.MessageRef{}, err
	}
	return pipeline.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (b *Bot) Edit(_ context.Context, ref pipeline.MessageRef, text string) error {
	_, err := b.api.Send(tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text))
	return err
}

func (b *Bot) Delete(_ context.Context, ref pipeline.MessageRef) error {
	_, err := b.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
	return err
}

// Deliver sends the final result of a task to its chat.
func (b *Bot) Deliver(ctx context.Context, outcome pipeline.Outcome) {
	chatID := outcome.Task.ChatID

	if outcome.Failure != nil {
		b.deliverFailure(chatID, outcome)
		return
	}

	b.rememberOutcome(chatID, outcome)

	text := formatSummary(outcome.Article, outcome.Summary, outcome.Hashtags)
	if len(text) > maxMessageLen && b.telegraph != nil {
		b.deliverViaTelegraph(ctx, chatID, outcome)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to deliver summary", "chat_id", chatID, "error", err)
		// HTML can trip Telegram's parser on odd model output; plain text
		// still beats silence.
		fallback := tgbotapi.NewMessage(chatID, outcome.Summary)
		if _, err := b.api.Send(fallback); err != nil {
			b.logger.Error("failed to deliver plain-text fallback", "chat_id", chatID, "error", err)
		}
	}
}

// deliverViaTelegraph publishes long summaries as a page and sends the link.
func (b *Bot) deliverViaTelegraph(ctx context.Context, chatID int64, outcome pipeline.Outcome) {
	title := "Summary"
	if outcome.Article != nil && outcome.Article.Title != "" {
		title = outcome.Article.Title
	}

	pageURL, err := b.telegraph.Publish(ctx, title, outcome.Summary)
	if err != nil {
		b.logger.Error("telegraph publish failed, sending truncated", "chat_id", chatID, "error", err)
		// The long-message branch triggers on the formatted text, so the raw
		// summary itself may fit; truncate only when it actually overflows.
		msg := tgbotapi.NewMessage(chatID, truncateText(outcome.Summary, maxMessageLen))
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error("failed to deliver truncated summary", "chat_id", chatID, "error", err)
		}
		return
	}

	text := fmt.Sprintf("%s <b>%s</b>\n\nThe summary came out long, so it lives here:\n%s",
		titleEmoji(outcome.Article), html.EscapeString(title), pageURL)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to deliver telegraph link", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) deliverFailure(chatID int64, outcome pipeline.Outcome) {
	msg := tgbotapi.NewMessage(chatID, failureText(outcome))
	if outcome.Failure.Kind.Retryable() && outcome.Task.URL != "" {
		b.rememberFailedTask(chatID, outcome.Task)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🔁 Retry", callbackRetry),
			),
		)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to deliver failure message", "chat_id", chatID, "error", err)
	}
}

func failureText(outcome pipeline.Outcome) string {
	switch outcome.Failure.Kind {
	case pipeline.FailFetchBlocked:
		return "🚫 The site is blocking automated access, so I couldn't read the article."
	case pipeline.FailFetchNetwork:
		return "🌐 I couldn't reach that site. Check the link and try again."
	case pipeline.FailExtraction:
		return "📄 I fetched the page but couldn't find readable article text on it."
	case pipeline.FailProviderRetry:
		return "⏳ The model is overloaded right now. Give it a minute and retry."
	case pipeline.FailProviderFatal:
		return "❌ The model rejected the request: " + outcome.Failure.Err.Error()
	case pipeline.FailTimeout:
		return "⏱ Processing took too long and was cancelled. Retry if the article matters."
	case pipeline.FailConfig:
		return "⚙️ Configuration problem: " + outcome.Failure.Err.Error()
	}
	return "Something went wrong: " + outcome.Failure.Err.Error()
}
