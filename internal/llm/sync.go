package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/linkbrief/linkbrief/internal/quota"
)

// openRouterModelCap bounds how many listed models get seeded into the
// quota file; the listing endpoint returns hundreds.
const openRouterModelCap = 30

// groqDefaults is the free-tier allowance applied to every Groq model.
var groqDefaults = quota.ModelQuota{
	RequestsPerMinute: 30,
	TokensPerMinute:   6000,
	RequestsPerDay:    14400,
}

// SyncModels refreshes the Groq and OpenRouter model tables from their
// listing endpoints. Existing entries keep their usage history; Gemini's
// table is fixed and never synced.
func SyncModels(ctx context.Context, store *quota.Store, providers []Provider, logger *slog.Logger) error {
	for _, p := range providers {
		var template quota.ModelQuota
		switch p.Name() {
		case ProviderGroq:
			template = groqDefaults
		case ProviderOpenRouter:
			// No published limits; tracked by call count only.
		default:
			continue
		}

		names, err := p.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("listing %s models: %w", p.Name(), err)
		}
		if p.Name() == ProviderOpenRouter && len(names) > openRouterModelCap {
			names = names[:openRouterModelCap]
		}

		if err := store.EnsureModels(p.Name(), names, template); err != nil {
			return fmt.Errorf("seeding %s models: %w", p.Name(), err)
		}
		logger.Info("synced provider models", "provider", p.Name(), "count", len(names))
	}
	return nil
}
