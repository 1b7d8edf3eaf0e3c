package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/stayware/booking/internal/booking"
	"github.com/stayware/booking/internal/policy"
)

// Unit is a bookable room or property. Identity is immutable; units are
// created by catalog management, not by the admission path.
type Unit struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description"`
	Location           string        `json:"location"`
	NightlyRate        float64       `json:"nightly_rate"`
	CancellationPolicy policy.Policy `json:"cancellation_policy"`
	CreatedAt          time.Time     `json:"created_at"`
}

// Filter enumerates the supported search criteria explicitly. Every field is
// optional; zero values mean "no constraint".
type Filter struct {
	Query    string  // substring match on name or description
	Location string  // substring match on location
	MinPrice float64 // nightly rate lower bound
	MaxPrice float64 // nightly rate upper bound
}

func (f *Filter) validate() error {
	inputErr := booking.NewInputError()

	if f.MinPrice < 0 {
		inputErr.AddError("min_price", "min_price must not be negative")
	}

	if f.MaxPrice < 0 {
		inputErr.AddError("max_price", "max_price must not be negative")
	}

	if f.MinPrice > 0 && f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		inputErr.AddError("min_price", "min_price must not exceed max_price")
	}

	if inputErr.HasErrors() {
		return inputErr
	}

	return nil
}

type storage interface {
	GetUnit(ctx context.Context, id string) (*Unit, error)
	SearchUnits(ctx context.Context, filter Filter) ([]*Unit, error)
}

type Service struct {
	storage storage
}

func NewService(storage storage) *Service {
	return &Service{storage: storage}
}

func (s *Service) Get(ctx context.Context, id string) (*Unit, error) {
	if id == "" {
		inputErr := booking.NewInputError()
		inputErr.AddError("unit_id", "provide unit_id")

		return nil, inputErr
	}

	unit, err := s.storage.GetUnit(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get unit %v: %w", id, err)
	}

	return unit, nil
}

// Search returns units matching the filter, newest first.
func (s *Service) Search(ctx context.Context, filter Filter) ([]*Unit, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}

	units, err := s.storage.SearchUnits(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search units: %w", err)
	}

	return units, nil
}
