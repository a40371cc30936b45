package mocks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

func ptr[T any](v T) *T { return &v }

func TestCatalog_CommitResolutionKeepsExistingMatch(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	p1 := c.AddProduct(domain.Product{Brand: "Apple", Model: "iPhone 15"})
	p2 := c.AddProduct(domain.Product{Brand: "Apple", Model: "iPhone 15 Pro"})
	l1 := c.AddListing(domain.Listing{SupplierID: 1, Label: "iphone 15"})
	l2 := c.AddListing(domain.Listing{SupplierID: 1, Label: "iphone 15"})

	res, err := c.CommitResolution(ctx, domain.Resolution{
		SupplierID: 1, NormalizedLabel: "iphone 15", ListingIDs: []int64{l1},
		ProductID: ptr(p1), Source: domain.SourceAuto, Score: 95,
	})
	require.NoError(t, err)
	assert.False(t, res.Superseded)
	assert.Equal(t, int64(1), res.Linked)

	res, err = c.CommitResolution(ctx, domain.Resolution{
		SupplierID: 1, NormalizedLabel: "iphone 15", ListingIDs: []int64{l2},
		ProductID: ptr(p2), Source: domain.SourceAuto, Score: 91,
	})
	require.NoError(t, err)
	assert.True(t, res.Superseded)
	assert.Equal(t, p1, *res.ProductID)

	got, ok := c.ProductOf(l2)
	require.True(t, ok)
	assert.Equal(t, p1, got)
}

func TestCatalog_ManualEntryWins(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	p := c.AddProduct(domain.Product{Brand: "Apple", Model: "iPhone 15"})

	_, err := c.CommitResolution(ctx, domain.Resolution{
		SupplierID: 1, NormalizedLabel: "x", Source: domain.SourceManual, ProductID: ptr(p),
	})
	require.NoError(t, err)

	require.NoError(t, c.UpsertLabel(ctx, domain.LabelCacheEntry{SupplierID: 1, NormalizedLabel: "x", Source: domain.SourceExtractionFallback}))

	e, ok := c.LabelEntry(1, "x")
	require.True(t, ok)
	assert.Equal(t, domain.SourceManual, e.Source)
}

func TestCatalog_OneOpenReviewPerLabel(t *testing.T) {
	ctx := context.Background()
	c := NewCatalog()

	id1, created, err := c.CreateReview(ctx, domain.ReviewEntry{SupplierID: 1, NormalizedLabel: "x"})
	require.NoError(t, err)
	assert.True(t, created)

	id2, created, err := c.CreateReview(ctx, domain.ReviewEntry{SupplierID: 1, NormalizedLabel: "x"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id1, id2)

	_, _, err = c.DecideReview(ctx, domain.ReviewDecision{ReviewID: id1, To: domain.ReviewCreated})
	require.ErrorIs(t, err, coreerrors.ErrInvalidTransition)
}

func TestRunStore_Lease(t *testing.T) {
	ctx := context.Background()
	s := NewRunStore()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }

	a, err := s.CreateRun(ctx, nil, 0)
	require.NoError(t, err)

	b, err := s.CreateRun(ctx, nil, 0)
	require.NoError(t, err)

	_, err = s.ClaimRun(ctx, a.ID)
	require.NoError(t, err)

	_, err = s.ClaimRun(ctx, b.ID)
	require.ErrorIs(t, err, coreerrors.ErrRunInProgress)

	now = now.Add(2 * time.Hour)

	n, err := s.AbandonStaleRuns(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.ClaimRun(ctx, b.ID)
	require.NoError(t, err)

	latest, err := s.LatestRun(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)
}
