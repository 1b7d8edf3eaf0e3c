package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/stayware/booking/internal/catalog"
	"github.com/stayware/booking/internal/logger"
	"github.com/stayware/booking/internal/policy"
)

type storage interface {
	SaveUnit(ctx context.Context, unit *catalog.Unit) error
}

// Up seeds the demo catalog. Only the in-memory deployment runs it; a real
// database is provisioned externally (see storage/postgres/schema.sql).
func Up(ctx context.Context, l *logger.Logger, storage storage) error {
	flexible, err := policy.ForType(policy.TypeFlexible)
	if err != nil {
		return fmt.Errorf("resolve flexible policy: %w", err)
	}

	moderate, err := policy.ForType(policy.TypeModerate)
	if err != nil {
		return fmt.Errorf("resolve moderate policy: %w", err)
	}

	strict, err := policy.ForType(policy.TypeStrict)
	if err != nil {
		return fmt.Errorf("resolve strict policy: %w", err)
	}

	now := time.Now().UTC()

	units := []*catalog.Unit{
		{
			ID:                 "luxury-resort-spa",
			Name:               "Luxury Resort & Spa",
			Description:        "Experience ultimate luxury with our premium amenities and world-class service.",
			Location:           "Miami Beach, FL",
			NightlyRate:        299,
			CancellationPolicy: strict,
			CreatedAt:          now,
		},
		{
			ID:                 "mountain-view-lodge",
			Name:               "Mountain View Lodge",
			Description:        "Escape to the mountains and enjoy breathtaking views and outdoor activities.",
			Location:           "Denver, CO",
			NightlyRate:        199,
			CancellationPolicy: moderate,
			CreatedAt:          now,
		},
		{
			ID:                 "urban-boutique-hotel",
			Name:               "Urban Boutique Hotel",
			Description:        "Modern comfort in the heart of the city with easy access to attractions.",
			Location:           "New York, NY",
			NightlyRate:        249,
			CancellationPolicy: flexible,
			CreatedAt:          now,
		},
	}

	for _, unit := range units {
		if err := storage.SaveUnit(ctx, unit); err != nil {
			return fmt.Errorf("save unit %v to storage: %w", unit.ID, err)
		}
	}

	l.LogInfo("Seeded %d catalog units", len(units))

	return nil
}
