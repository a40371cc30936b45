package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: 5, Brand: "Samsung", Model: "Galaxy S25 Ultra", Storage: "256 Go", Color: "Noir"},
		{ID: 1, Brand: "Samsung", Model: "Galaxy S25 Ultra", Storage: "256 Go", Color: "Noir"},
		{ID: 2, Brand: "Samsung", Model: "Galaxy S25 Ultra", Storage: "256 Go", Color: "Blanc"},
		{ID: 3, Brand: "Samsung", Model: "Galaxy S25 Ultra", Storage: "512 Go", Color: "Noir"},
		{ID: 4, Brand: "samsung", Model: "Galaxy S25 Ultra", Storage: "256 Go"},
		{ID: 6, Brand: "Apple", Model: "iPhone 16", Storage: "256 Go", Color: "Noir"},
	}
}

func TestRanker_TopNOrdering(t *testing.T) {
	r := NewRanker(NewIndex(testProducts()), testVocab(), 3)

	got := r.Rank(s25Attrs())
	require.Len(t, got, 3)

	assert.Equal(t, int64(1), got[0].ProductID)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, int64(5), got[1].ProductID)
	assert.Equal(t, 100, got[1].Score)
	assert.Equal(t, int64(4), got[2].ProductID)
	assert.Equal(t, 85, got[2].Score)
	assert.Equal(t, "samsung Galaxy S25 Ultra 256 Go", got[2].DisplayName)
}

func TestRanker_ExcludesDisqualified(t *testing.T) {
	products := []domain.Product{
		{ID: 1, Brand: "Samsung", Model: "Galaxy S25 Ultra", Storage: "256 Go", Color: "Noir"},
	}
	r := NewRanker(NewIndex(products), testVocab(), 3)

	attrs := s25Attrs()
	attrs.Storage = "128 Go"

	assert.Empty(t, r.Rank(attrs))
}

func TestRanker_UnusableOrUnknownBrand(t *testing.T) {
	r := NewRanker(NewIndex(testProducts()), testVocab(), 3)

	assert.Empty(t, r.Rank(&domain.Attributes{ModelFamily: "Galaxy S25 Ultra"}))
	assert.Empty(t, r.Rank(&domain.Attributes{Brand: "Xiaomi", ModelFamily: "Redmi Note 13"}))
	assert.Empty(t, r.Rank(nil))
}

func TestIndex_AddDuringRun(t *testing.T) {
	idx := NewIndex(nil)
	r := NewRanker(idx, testVocab(), 0)

	assert.Empty(t, r.Rank(s25Attrs()))

	idx.Add(s25Ultra())
	idx.Add(domain.Product{ID: 9, Model: "no brand"})

	got := r.Rank(s25Attrs())
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].Score)
	assert.Equal(t, 1, idx.Len())
}
