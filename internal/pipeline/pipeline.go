package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/linkbrief/linkbrief/internal/extractor"
	"github.com/linkbrief/linkbrief/internal/fetcher"
	"github.com/linkbrief/linkbrief/internal/history"
	"github.com/linkbrief/linkbrief/internal/llm"
	"github.com/linkbrief/linkbrief/internal/metrics"
	"github.com/linkbrief/linkbrief/internal/models"
)

// MessageRef addresses a message the transport can later edit or delete.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport is the messaging surface used for progress updates.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Delete(ctx context.Context, ref MessageRef) error
}

// Sink receives the final outcome of a task, success or failure.
type Sink interface {
	Deliver(ctx context.Context, outcome Outcome)
}

// FailureKind classifies why a task failed, which decides the user-facing
// message and whether a retry button makes sense.
type FailureKind int

const (
	FailFetchBlocked FailureKind = iota
	FailFetchNetwork
	FailExtraction
	FailProviderRetry
	FailProviderFatal
	FailTimeout
	FailConfig
)

func (k FailureKind) String() string {
	switch k {
	case FailFetchBlocked:
		return "fetch_blocked"
	case FailFetchNetwork:
		return "fetch_network"
	case FailExtraction:
		return "extraction_insufficient"
	case FailProviderRetry:
		return "provider_retry"
	case FailProviderFatal:
		return "provider_fatal"
	case FailTimeout:
		return "timeout"
	case FailConfig:
		return "config"
	}
	return "unknown"
}

// Retryable reports whether re-submitting the same task later is likely to
// succeed.
func (k FailureKind) Retryable() bool {
	return k == FailProviderRetry || k == FailTimeout
}

type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string { return fmt.Sprintf("%s: %v", f.Kind, f.Err) }

func (f *Failure) Unwrap() error { return f.Err }

// Outcome is what the sink delivers to the user.
type Outcome struct {
	Task     *models.Task
	Article  *models.ArticleContent
	Summary  string
	Hashtags []string
	Model    string
	Variant  string
	Failure  *Failure
}

// Options carries the per-process defaults the pipeline falls back to when
// a task does not pin its own.
type Options struct {
	DefaultModel    string
	DefaultVariant  string
	SummaryLanguage string
	Temperature     float64
}

// Pipeline turns a queued task into a delivered outcome: fetch, extract,
// prompt, dispatch, record.
type Pipeline struct {
	fetcher    *fetcher.Fetcher
	extractor  *extractor.Extractor
	dispatcher *llm.Dispatcher
	prompts    *llm.Library
	history    *history.Store
	transport  Transport
	sink       Sink
	opts       Options
	logger     *slog.Logger
}

func New(
	f *fetcher.Fetcher,
	e *extractor.Extractor,
	d *llm.Dispatcher,
	prompts *llm.Library,
	hist *history.Store,
	transport Transport,
	sink Sink,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	return &Pipeline{
		fetcher:    f,
		extractor:  e,
		dispatcher: d,
		prompts:    prompts,
		history:    hist,
		transport:  transport,
		sink:       sink,
		opts:       opts,
		logger:     logger,
	}
}

// Process handles one task end to end. It never returns an error; failures
// are classified and delivered through the sink.
func (p *Pipeline) Process(ctx context.Context, task *models.Task) {
	progress := p.startProgress(ctx, task)
	outcome := p.run(ctx, task)
	progress.stop()

	if outcome.Failure != nil {
		metrics.TasksProcessed.WithLabelValues(outcome.Failure.Kind.String()).Inc()
		p.logger.Warn("task failed",
			"task_id", task.ID, "url", task.URL,
			"kind", outcome.Failure.Kind.String(), "error", outcome.Failure.Err)
	} else {
		metrics.TasksProcessed.WithLabelValues("success").Inc()
	}

	// Deliver with a fresh context so a task timeout cannot swallow the
	// final user-facing message.
	deliverCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.sink.Deliver(deliverCtx, outcome)
}

func (p *Pipeline) run(ctx context.Context, task *models.Task) Outcome {
	outcome := Outcome{
		Task:    task,
		Model:   task.Options.Model,
		Variant: task.Options.Variant,
	}
	if outcome.Model == "" {
		outcome.Model = p.opts.DefaultModel
	}
	if outcome.Variant == "" {
		outcome.Variant = p.opts.DefaultVariant
	}

	article := task.Article
	if task.Question == "" {
		fetched, failure := p.fetchArticle(ctx, task)
		if failure != nil {
			outcome.Failure = failure
			return outcome
		}
		article = fetched
	} else {
		outcome.Variant = "qna"
	}
	outcome.Article = article

	system, user, err := p.renderPrompt(task, article, outcome.Variant)
	if err != nil {
		outcome.Failure = &Failure{Kind: FailConfig, Err: err}
		return outcome
	}
	if task.Options.URLContext && task.URL != "" {
		user = task.URL + "\n\n" + user
	}

	result, err := p.dispatcher.Generate(ctx, llm.Request{
		Model:       outcome.Model,
		System:      system,
		User:        user,
		Temperature: p.opts.Temperature,
		WebSearch:   task.Options.WebSearch,
	})
	if err != nil {
		outcome.Failure = classifyProviderError(err)
		return outcome
	}

	outcome.Summary = result.Text
	if article != nil {
		outcome.Hashtags = Hashtags(article)
	}

	if p.history != nil && task.Question == "" {
		entry := history.Entry{
			ChatID:  task.ChatID,
			URL:     task.URL,
			Model:   outcome.Model,
			Variant: outcome.Variant,
			Summary: outcome.Summary,
		}
		if article != nil {
			entry.Title = article.Title
		}
		if err := p.history.Add(ctx, entry); err != nil {
			p.logger.Error("failed to record history", "task_id", task.ID, "error", err)
		}
	}

	return outcome
}

func (p *Pipeline) fetchArticle(ctx context.Context, task *models.Task) (*models.ArticleContent, *Failure) {
	body, strategy, err := p.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		var fetchErr *fetcher.Error
		if errors.As(err, &fetchErr) {
			for _, attempt := range fetchErr.Attempts {
				metrics.FetchAttempts.WithLabelValues(attempt.Strategy, "failure").Inc()
			}
			if fetchErr.Kind == fetcher.KindBlocked {
				return nil, &Failure{Kind: FailFetchBlocked, Err: err}
			}
			return nil, &Failure{Kind: FailFetchNetwork, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &Failure{Kind: FailTimeout, Err: err}
		}
		return nil, &Failure{Kind: FailFetchNetwork, Err: err}
	}
	metrics.FetchAttempts.WithLabelValues(strategy, "success").Inc()

	article, err := p.extractor.Extract(task.URL, body)
	if err != nil {
		if errors.Is(err, extractor.ErrInsufficient) {
			return nil, &Failure{Kind: FailExtraction, Err: err}
		}
		return nil, &Failure{Kind: FailExtraction, Err: err}
	}

	if article.Language == "" {
		article.Language = p.summaryLanguage(article)
	}
	return article, nil
}

// summaryLanguage resolves the language the summary should be written in:
// the configured value, or the article's own language when set to auto.
func (p *Pipeline) summaryLanguage(article *models.ArticleContent) string {
	if !strings.EqualFold(p.opts.SummaryLanguage, "auto") {
		return p.opts.SummaryLanguage
	}
	if detected := p.extractor.DetectLanguage(article.Text); detected != "" {
		return detected
	}
	return "English"
}

func (p *Pipeline) renderPrompt(task *models.Task, article *models.ArticleContent, variant string) (string, string, error) {
	vars := map[string]string{
		"summary_language": p.opts.SummaryLanguage,
		"url":              task.URL,
		"question":         task.Question,
		"summary":          task.Summary,
	}
	if article != nil {
		vars["title"] = article.Title
		vars["text"] = article.Text
		vars["author"] = article.Author
		vars["date"] = article.Date
		vars["sitename"] = article.SiteName
		vars["tags"] = strings.Join(article.Tags, ", ")
		if article.Language != "" {
			vars["summary_language"] = article.Language
		}
	}
	return p.prompts.Render(variant, vars)
}

func classifyProviderError(err error) *Failure {
	var exhausted *llm.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return &Failure{Kind: FailProviderRetry, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Failure{Kind: FailTimeout, Err: err}
	}
	return &Failure{Kind: FailProviderFatal, Err: err}
}

var hashtagClean = regexp.MustCompile(`[^a-zA-Z0-9_]`)

const maxHashtags = 5

// Hashtags derives Telegram-style hashtags from the article's tags and
// categories.
func Hashtags(article *models.ArticleContent) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, raw := range append(append([]string{}, article.Categories...), article.Tags...) {
		tag := hashtagClean.ReplaceAllString(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_"), "")
		tag = strings.Trim(tag, "_")
		if tag == "" {
			continue
		}
		tag = "#" + strings.ToLower(tag)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxHashtags {
			break
		}
	}
	return tags
}
