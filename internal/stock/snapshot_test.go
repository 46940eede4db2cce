package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type fetcherFunc func(ctx context.Context, productID int64) (decimal.Decimal, error)

func (f fetcherFunc) FetchLastClosingStock(ctx context.Context, productID int64) (decimal.Decimal, error) {
	return f(ctx, productID)
}

func TestLoadAndAvailable(t *testing.T) {
	snap := NewSnapshot(fetcherFunc(func(ctx context.Context, id int64) (decimal.Decimal, error) {
		return decimal.NewFromInt(id * 10), nil
	}))

	snap.Load(context.Background(), []int64{1, 2})

	if !snap.Available(1).Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10, got %s", snap.Available(1))
	}
	if !snap.Available(2).Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected 20, got %s", snap.Available(2))
	}
}

func TestAvailableDefaultsToZero(t *testing.T) {
	snap := NewSnapshot(fetcherFunc(func(ctx context.Context, id int64) (decimal.Decimal, error) {
		return decimal.Zero, nil
	}))

	if !snap.Available(99).IsZero() {
		t.Errorf("unknown product should report zero stock, got %s", snap.Available(99))
	}
}

func TestFailedLookupDegradesToZero(t *testing.T) {
	snap := NewSnapshot(fetcherFunc(func(ctx context.Context, id int64) (decimal.Decimal, error) {
		if id == 2 {
			return decimal.Zero, errors.New("backend unavailable")
		}
		return decimal.RequireFromString("3.5"), nil
	}))

	snap.Load(context.Background(), []int64{1, 2, 3})

	// The failed product blocks sale, the rest of the catalog stays usable.
	if !snap.Available(2).IsZero() {
		t.Errorf("failed lookup must degrade to 0, got %s", snap.Available(2))
	}
	if !snap.Available(1).Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("healthy lookups must survive a failed sibling, got %s", snap.Available(1))
	}
}

func TestRefreshReloadsKnownProducts(t *testing.T) {
	qty := decimal.NewFromInt(5)
	snap := NewSnapshot(fetcherFunc(func(ctx context.Context, id int64) (decimal.Decimal, error) {
		return qty, nil
	}))

	snap.Load(context.Background(), []int64{7})
	if !snap.Available(7).Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5, got %s", snap.Available(7))
	}

	// The backend moved; a refresh picks up the new quantity for the same ids.
	qty = decimal.NewFromInt(2)
	snap.Refresh(context.Background())

	if !snap.Available(7).Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected refreshed quantity 2, got %s", snap.Available(7))
	}
}

func TestFractionalStock(t *testing.T) {
	snap := NewSnapshot(fetcherFunc(func(ctx context.Context, id int64) (decimal.Decimal, error) {
		return decimal.RequireFromString("1.25"), nil
	}))

	snap.Load(context.Background(), []int64{1})
	if !snap.Available(1).Equal(decimal.RequireFromString("1.25")) {
		t.Errorf("fractional stock must be preserved, got %s", snap.Available(1))
	}
}
