package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayware/booking/internal/booking"
)

type fakeStore struct {
	units      map[string]*Unit
	lastFilter Filter
}

func (f *fakeStore) GetUnit(_ context.Context, id string) (*Unit, error) {
	unit, ok := f.units[id]
	if !ok {
		return nil, booking.ErrRecordNotFound
	}

	return unit, nil
}

func (f *fakeStore) SearchUnits(_ context.Context, filter Filter) ([]*Unit, error) {
	f.lastFilter = filter

	var out []*Unit

	for _, unit := range f.units {
		out = append(out, unit)
	}

	return out, nil
}

func newTestService() (*Service, *fakeStore) {
	//nolint:exhaustruct
	store := &fakeStore{
		units: map[string]*Unit{
			"u1": {ID: "u1", Name: "Mountain View Lodge", NightlyRate: 199},
		},
	}

	return NewService(store), store
}

func TestGet(t *testing.T) {
	svc, _ := newTestService()

	unit, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Mountain View Lodge", unit.Name)

	_, err = svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, booking.ErrRecordNotFound)

	_, err = svc.Get(context.Background(), "")
	require.NotNil(t, booking.IsInputError(err))
}

func TestSearch_PassesFilterThrough(t *testing.T) {
	svc, store := newTestService()

	filter := Filter{Query: "lodge", Location: "denver", MinPrice: 100, MaxPrice: 300}

	units, err := svc.Search(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, units, 1)
	assert.Equal(t, filter, store.lastFilter)
}

func TestSearch_FilterValidation(t *testing.T) {
	svc, _ := newTestService()

	tests := []struct {
		name   string
		filter Filter
		field  string
	}{
		{"negative min", Filter{MinPrice: -1}, "min_price"},
		{"negative max", Filter{MaxPrice: -1}, "max_price"},
		{"inverted", Filter{MinPrice: 300, MaxPrice: 100}, "min_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Search(context.Background(), tt.filter)

			inputErr := booking.IsInputError(err)
			require.NotNil(t, inputErr)
			assert.Contains(t, inputErr.Fields(), tt.field)
		})
	}
}
