package resolver

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
	"github.com/lueurxax/catalog-resolver/internal/core/llm"
	"github.com/lueurxax/catalog-resolver/internal/core/ports/mocks"
	"github.com/lueurxax/catalog-resolver/internal/process/extraction"
	"github.com/lueurxax/catalog-resolver/internal/process/labelcache"
)

const supplierA = int64(7)

type staticVocabulary struct {
	vocab *domain.Vocabulary
}

func (s staticVocabulary) Build(context.Context) (*domain.Vocabulary, error) {
	return s.vocab, nil
}

// countingOracle counts calls and delegates to fn, or to the offline mock provider.
type countingOracle struct {
	calls atomic.Int32
	fn    func(labels []string) (llm.ExtractionResult, error)
	inner llm.Oracle
}

func (o *countingOracle) Name() llm.ProviderName { return llm.ProviderMock }

func (o *countingOracle) ExtractAttributes(ctx context.Context, labels []string, vocab *domain.Vocabulary) (llm.ExtractionResult, error) {
	o.calls.Add(1)

	if o.fn != nil {
		return o.fn(labels)
	}

	return o.inner.ExtractAttributes(ctx, labels, vocab)
}

func testVocabulary() *domain.Vocabulary {
	return domain.NewVocabulary(domain.VocabularyData{
		Brands: []string{"Samsung", "Apple"},
		ColorSynonyms: map[string][]string{
			"Noir":  {"black"},
			"Blanc": {"white"},
		},
		StorageSizes:      []string{"128 Go", "256 Go", "1 To"},
		ManufacturerCodes: map[string]string{"SM-S938B": "Galaxy S25 Ultra"},
		DeviceTypes:       []string{"Smartphone"},
	})
}

type fixture struct {
	catalog   *mocks.Catalog
	publisher *mocks.Publisher
	oracle    *countingOracle
	resolver  *Resolver
}

func newFixture(t *testing.T, batchSize, concurrency int) *fixture {
	t.Helper()

	f := &fixture{
		catalog:   mocks.NewCatalog(),
		publisher: mocks.NewPublisher(),
		oracle:    &countingOracle{inner: llm.NewMockProvider()},
	}

	client := extraction.New(f.oracle, extraction.Config{BatchSize: batchSize, MaxRetries: 0, BackoffBase: time.Millisecond}, nil)
	cache := labelcache.New(f.catalog, nil, nil)

	f.resolver = New(f.catalog, staticVocabulary{vocab: testVocabulary()}, client, cache, f.publisher, Config{
		Concurrency: concurrency,
		PageSize:    2,
	}, nil)

	return f
}

func (f *fixture) addGalaxy() int64 {
	return f.catalog.AddProduct(domain.Product{
		Brand:      "Samsung",
		Model:      "Galaxy S25 Ultra",
		Storage:    "256 Go",
		Color:      "Noir",
		DeviceType: "Smartphone",
	})
}

func fixedAttributes(attrs domain.Attributes) func(labels []string) (llm.ExtractionResult, error) {
	return func(labels []string) (llm.ExtractionResult, error) {
		records := make([]domain.Attributes, len(labels))
		for i := range records {
			records[i] = attrs
		}

		return llm.ExtractionResult{Records: records, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
	}
}

func TestRun_GalaxyExamples(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	galaxy := f.addGalaxy()
	a := f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Samsung Galaxy S25 Ultra 256Go Noir"})
	b := f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "SAMSUNG GALAXY S25 ULTRA 256 GO NOIR"})
	c := f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Samsung SM-S938B 1To black"})

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalLabels)
	assert.Equal(t, 1, report.ExtractionCalls)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Equal(t, 1, report.AutoCreated)
	assert.Zero(t, report.Errors)

	for _, id := range []int64{a, b} {
		got, ok := f.catalog.ProductOf(id)
		require.True(t, ok)
		assert.Equal(t, galaxy, got)
	}

	created, ok := f.catalog.ProductOf(c)
	require.True(t, ok)
	assert.NotEqual(t, galaxy, created)

	products := f.catalog.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "Galaxy S25 Ultra", products[1].Model)
	assert.Equal(t, "1 To", products[1].Storage)
}

func TestRun_RerunIsFree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	f.addGalaxy()
	f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Samsung SM-S938B 1To black"})

	_, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(1), f.oracle.calls.Load())

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.TotalLabels)
	assert.Zero(t, report.ExtractionCalls)

	late := f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "SAMSUNG sm-s938b 1to Black"})

	report, err = f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CacheHits)
	assert.Zero(t, report.ExtractionCalls)
	assert.Equal(t, int32(1), f.oracle.calls.Load())

	_, ok := f.catalog.ProductOf(late)
	assert.True(t, ok)
	assert.Len(t, f.catalog.Products(), 2)
}

func TestRun_LimitLeavesRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	for i, size := range []string{"64Go", "128Go", "256Go", "512Go", "1To"} {
		f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: fmt.Sprintf("Apple iPhone %d %s", 11+i, size)})
	}

	report, err := f.resolver.Run(ctx, RunOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalLabels)
	assert.Equal(t, 3, report.Remaining)
	assert.Equal(t, 2, report.AutoCreated)

	report, err = f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.TotalLabels)
	assert.Equal(t, 3, report.AutoCreated)
	assert.Zero(t, report.Remaining)

	assert.Len(t, f.catalog.Products(), 5)
}

func TestRun_SameAttributesAcrossBatchesCreateOneProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 3)

	f.oracle.fn = fixedAttributes(domain.Attributes{Brand: "Apple", ModelFamily: "iPhone 15", Storage: "128 Go", Confidence: 0.9})

	for _, label := range []string{"apple iphone 15 128", "iphone15 apple 128go", "APPLE IPHONE 15 (128GB)"} {
		f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: label})
	}

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.ExtractionCalls)
	assert.Equal(t, 1, report.AutoCreated)
	assert.Equal(t, 2, report.AutoMatched)
	assert.Len(t, f.catalog.Products(), 1)
	assert.Equal(t, 30, report.PromptTokens)
}

func TestRun_ReviewQueuedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	f.addGalaxy()
	f.oracle.fn = fixedAttributes(domain.Attributes{Brand: "Samsung", ModelFamily: "Galaxy S25 Ultra", Storage: "256 Go", Color: "Blanc"})
	f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Galaxy S25 Ultra 256 blanc"})

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.QueuedForReview)

	reviews := f.catalog.Reviews()
	require.Len(t, reviews, 1)
	assert.Equal(t, domain.ReviewPending, reviews[0].Status)
	require.NotEmpty(t, reviews[0].Candidates)
	assert.Equal(t, 80, reviews[0].Candidates[0].Score)

	events := f.publisher.QueuedReviews()
	require.Len(t, events, 1)
	assert.Equal(t, reviews[0].ID, events[0].ID)

	report, err = f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.AwaitingReview)
	assert.Zero(t, report.ExtractionCalls)
	assert.Len(t, f.catalog.Reviews(), 1)
}

func TestRun_UnusableRecordIsCachedUnresolved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	id := f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Unknown gadget"})
	f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: " -- "})

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, 1, report.Skipped)

	entry, ok := f.catalog.LabelEntry(supplierA, "unknown gadget")
	require.True(t, ok)
	assert.Equal(t, domain.SourceExtractionFallback, entry.Source)
	assert.Nil(t, entry.ProductID)

	_, linked := f.catalog.ProductOf(id)
	assert.False(t, linked)

	report, err = f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.CacheHits)
	assert.Equal(t, 1, report.UnresolvedHits)
	assert.Zero(t, report.ExtractionCalls)
}

func TestRun_AuthenticationStopsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, 1)

	f.oracle.fn = func([]string) (llm.ExtractionResult, error) {
		return llm.ExtractionResult{}, fmt.Errorf("chat: %w", coreerrors.ErrAuthentication)
	}

	for i := range 3 {
		f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: fmt.Sprintf("Apple iPhone %d", 11+i)})
	}

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.ErrorIs(t, err, coreerrors.ErrAuthentication)
	assert.Equal(t, 3, report.Remaining)
	assert.Empty(t, f.catalog.Products())
	assert.GreaterOrEqual(t, f.oracle.calls.Load(), int32(1))
}

func TestRun_CommitFailureIsCounted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	f.catalog.CommitResolutionFn = func(context.Context, domain.Resolution) (domain.CommitResult, error) {
		return domain.CommitResult{}, mocks.ErrInjected
	}

	f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Apple iPhone 15"})
	f.catalog.AddListing(domain.Listing{SupplierID: supplierA, Label: "Apple iPhone 16"})

	report, err := f.resolver.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Errors)
	assert.Len(t, report.ErrorMessages, 2)
	assert.Zero(t, report.AutoCreated)
}

func TestRun_SupplierScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 25, 2)

	own, other := supplierA, supplierA+1
	f.catalog.AddListing(domain.Listing{SupplierID: own, Label: "Apple iPhone 15 128Go"})
	f.catalog.AddListing(domain.Listing{SupplierID: other, Label: "Apple iPhone 15 128Go"})

	report, err := f.resolver.Run(ctx, RunOptions{SupplierID: &other})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalLabels)
	assert.Equal(t, 1, report.AutoCreated)

	report, err = f.resolver.Run(ctx, RunOptions{SupplierID: &own})
	require.NoError(t, err)
	assert.Equal(t, 1, report.AutoMatched)
	assert.Len(t, f.catalog.Products(), 1)
}
