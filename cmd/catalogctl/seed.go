package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/utafrali/catalog/internal/app"
	"github.com/utafrali/catalog/internal/config"
	"github.com/utafrali/catalog/internal/domain"
	apperrors "github.com/utafrali/catalog/pkg/errors"
)

var (
	seedCategories = []string{"Tools", "Garden", "Kitchen", "Outdoor", "Office", "Lighting"}
	seedAdjectives = []string{"Compact", "Heavy-Duty", "Classic", "Cordless", "Folding", "Premium", "Everyday"}
	seedNouns      = []string{"Drill", "Lamp", "Kettle", "Shovel", "Stapler", "Hammock", "Toolbox", "Planter"}
)

// seedProduct builds the i-th demo product. The same i always yields the
// same product, so re-runs skip rather than duplicate.
func seedProduct(i int) *domain.Product {
	rng := rand.New(rand.NewPCG(uint64(i), 0x5eed))
	adjective := seedAdjectives[rng.IntN(len(seedAdjectives))]
	noun := seedNouns[rng.IntN(len(seedNouns))]
	category := seedCategories[rng.IntN(len(seedCategories))]
	status := domain.StatusActive
	if rng.IntN(10) == 0 {
		status = domain.StatusInactive
	}

	return domain.NewProduct(domain.CreateProductInput{
		SKU:         fmt.Sprintf("SEED-%06d", i),
		Name:        adjective + " " + noun,
		Description: fmt.Sprintf("%s %s for %s use.", adjective, strings.ToLower(noun), strings.ToLower(category)),
		Price:       decimal.New(int64(199+rng.IntN(49800)), -2),
		Category:    category,
		Status:      status,
	})
}

// seed inserts demo products straight into the store. Run reindex-all
// afterwards to make them searchable.
func seed(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer, count int) error {
	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	inserted, skipped := 0, 0
	for i := 1; i <= count; i++ {
		if err := store.Repo.Insert(ctx, seedProduct(i)); err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				skipped++
				continue
			}
			return fmt.Errorf("insert product %d: %w", i, err)
		}
		inserted++
		if inserted%500 == 0 {
			log.Info("seeding", slog.Int("inserted", inserted))
		}
	}

	fmt.Fprintf(out, "inserted %d products, skipped %d existing\n", inserted, skipped)
	return nil
}
