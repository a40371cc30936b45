package mocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

// Catalog is a thread-safe in-memory implementation of ports.CatalogRepository.
type Catalog struct {
	mu        sync.Mutex
	listings  map[int64]domain.Listing
	links     map[int64]int64
	products  map[int64]domain.Product
	labels    map[domain.LabelKey]domain.LabelCacheEntry
	reviews   map[string]domain.ReviewEntry
	nextID    int64
	reviewSeq int

	// CommitResolutionFn allows overriding CommitResolution behavior.
	CommitResolutionFn func(ctx context.Context, r domain.Resolution) (domain.CommitResult, error)

	// LinkListingsFn allows overriding LinkListings behavior.
	LinkListingsFn func(ctx context.Context, listingIDs []int64, productID int64) (int64, error)

	// CreateReviewFn allows overriding CreateReview behavior.
	CreateReviewFn func(ctx context.Context, entry domain.ReviewEntry) (string, bool, error)
}

// NewCatalog creates an empty mock catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		listings: make(map[int64]domain.Listing),
		links:    make(map[int64]int64),
		products: make(map[int64]domain.Product),
		labels:   make(map[domain.LabelKey]domain.LabelCacheEntry),
		reviews:  make(map[string]domain.ReviewEntry),
	}
}

// AddProduct stores a product and returns its id.
func (c *Catalog) AddProduct(p domain.Product) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.addProductLocked(p)
}

func (c *Catalog) addProductLocked(p domain.Product) int64 {
	c.nextID++
	p.ID = c.nextID
	c.products[p.ID] = p

	return p.ID
}

// AddListing stores an unlinked listing and returns its id.
func (c *Catalog) AddListing(l domain.Listing) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	l.ID = c.nextID
	c.listings[l.ID] = l

	return l.ID
}

// ProductOf returns the product a listing is linked to.
func (c *Catalog) ProductOf(listingID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.links[listingID]

	return id, ok
}

// Products returns a copy of every stored product ordered by id.
func (c *Catalog) Products() []domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.productsLocked()
}

func (c *Catalog) productsLocked() []domain.Product {
	out := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Reviews returns every stored review ordered by id.
func (c *Catalog) Reviews() []domain.ReviewEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ReviewEntry, 0, len(c.reviews))
	for _, r := range c.reviews {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// ListUnresolvedListings returns unlinked listings ordered by id.
func (c *Catalog) ListUnresolvedListings(_ context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.listLocked(filter, func(id int64) bool {
		_, linked := c.links[id]
		return !linked
	}), nil
}

// ListLinkedListings returns the listings linked to a product ordered by id.
func (c *Catalog) ListLinkedListings(_ context.Context, productID int64, filter domain.ListingFilter) ([]domain.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.listLocked(filter, func(id int64) bool {
		linkedTo, linked := c.links[id]
		return linked && linkedTo == productID
	}), nil
}

func (c *Catalog) listLocked(filter domain.ListingFilter, keep func(id int64) bool) []domain.Listing {
	var out []domain.Listing

	for id, l := range c.listings {
		if !keep(id) {
			continue
		}

		if filter.SupplierID != nil && l.SupplierID != *filter.SupplierID {
			continue
		}

		if l.ID <= filter.AfterID {
			continue
		}

		out = append(out, l)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out
}

// LinkListings links still-unlinked listings to a product.
func (c *Catalog) LinkListings(ctx context.Context, listingIDs []int64, productID int64) (int64, error) {
	if c.LinkListingsFn != nil {
		return c.LinkListingsFn(ctx, listingIDs, productID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.linkLocked(listingIDs, productID), nil
}

func (c *Catalog) linkLocked(listingIDs []int64, productID int64) int64 {
	var n int64

	for _, id := range listingIDs {
		if _, ok := c.listings[id]; !ok {
			continue
		}

		if _, linked := c.links[id]; linked {
			continue
		}

		c.links[id] = productID
		n++
	}

	return n
}

func (c *Catalog) relinkLocked(listingIDs []int64, from, to int64) int64 {
	var n int64

	for _, id := range listingIDs {
		if linkedTo, linked := c.links[id]; linked && linkedTo == from {
			c.links[id] = to
			n++
		}
	}

	return n
}

// ListProducts returns every product.
func (c *Catalog) ListProducts(_ context.Context) ([]domain.Product, error) {
	return c.Products(), nil
}

// GetProduct returns one product.
func (c *Catalog) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, coreerrors.ErrProductNotFound
	}

	return p, nil
}

// CommitResolution mirrors the storage commit (db.commitResolutionTx): an
// existing resolved entry wins over a non-manual resolution, a manual entry
// is never replaced by a non-manual one, and a manual resolution that
// changes the product moves RelinkIDs off the previous product.
func (c *Catalog) CommitResolution(ctx context.Context, r domain.Resolution) (domain.CommitResult, error) {
	if c.CommitResolutionFn != nil {
		return c.CommitResolutionFn(ctx, r)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitLocked(r)
}

func (c *Catalog) commitLocked(r domain.Resolution) (domain.CommitResult, error) {
	var res domain.CommitResult

	existing, ok := c.labels[r.Key()]

	switch {
	case ok && existing.ProductID != nil && r.Source != domain.SourceManual:
		res.ProductID = existing.ProductID
		res.Superseded = true
	case ok && existing.Source == domain.SourceManual && r.Source != domain.SourceManual:
		res.Superseded = true
	case r.ProductID != nil:
		if _, found := c.products[*r.ProductID]; !found {
			return domain.CommitResult{}, coreerrors.ErrProductNotFound
		}

		res.ProductID = r.ProductID
	case r.NewProduct != nil:
		id := c.addProductLocked(*r.NewProduct)
		res.ProductID = &id
		res.Created = true
	}

	if res.ProductID != nil {
		res.Linked = c.linkLocked(r.ListingIDs, *res.ProductID)
	}

	if ok && r.Source == domain.SourceManual && existing.ProductID != nil &&
		res.ProductID != nil && *existing.ProductID != *res.ProductID {
		res.Linked += c.relinkLocked(r.RelinkIDs, *existing.ProductID, *res.ProductID)
	}

	if res.Superseded {
		return res, nil
	}

	now := time.Now()
	c.labels[r.Key()] = domain.LabelCacheEntry{
		SupplierID:      r.SupplierID,
		NormalizedLabel: r.NormalizedLabel,
		ProductID:       res.ProductID,
		Score:           r.Score,
		Source:          r.Source,
		Attributes:      r.Attributes,
		CreatedAt:       now,
		LastUsedAt:      now,
	}

	return res, nil
}

// LookupLabel returns the cache entry of a label, or nil on a miss.
func (c *Catalog) LookupLabel(_ context.Context, supplierID int64, normalizedLabel string) (*domain.LabelCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.LabelKey{SupplierID: supplierID, NormalizedLabel: normalizedLabel}

	e, ok := c.labels[key]
	if !ok {
		return nil, nil
	}

	e.LastUsedAt = time.Now()
	c.labels[key] = e

	return &e, nil
}

// UpsertLabel writes a cache entry unless it would replace a manual one, as
// the conflict clause of db.upsertLabel does.
func (c *Catalog) UpsertLabel(_ context.Context, entry domain.LabelCacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.LabelKey{SupplierID: entry.SupplierID, NormalizedLabel: entry.NormalizedLabel}
	if existing, ok := c.labels[key]; ok && existing.Source == domain.SourceManual && entry.Source != domain.SourceManual {
		return nil
	}

	c.labels[key] = entry

	return nil
}

// ListLabelsBySupplier returns a supplier's cache entries ordered by label.
func (c *Catalog) ListLabelsBySupplier(_ context.Context, supplierID int64) ([]domain.LabelCacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.LabelCacheEntry

	for k, e := range c.labels {
		if k.SupplierID == supplierID {
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedLabel < out[j].NormalizedLabel })

	return out, nil
}

// CreateReview queues a review unless the label already has an open one.
func (c *Catalog) CreateReview(ctx context.Context, entry domain.ReviewEntry) (string, bool, error) {
	if c.CreateReviewFn != nil {
		return c.CreateReviewFn(ctx, entry)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.reviews {
		if r.SupplierID == entry.SupplierID && r.NormalizedLabel == entry.NormalizedLabel && isOpen(r.Status) {
			return r.ID, false, nil
		}
	}

	c.reviewSeq++
	entry.ID = fmt.Sprintf("review-%04d", c.reviewSeq)
	entry.Status = domain.ReviewPending
	entry.CreatedAt = time.Now()
	c.reviews[entry.ID] = entry

	return entry.ID, true, nil
}

// GetReview returns one review.
func (c *Catalog) GetReview(_ context.Context, id string) (domain.ReviewEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.reviews[id]
	if !ok {
		return domain.ReviewEntry{}, coreerrors.ErrReviewNotFound
	}

	return r, nil
}

// ListReviews returns reviews with a status, oldest first.
func (c *Catalog) ListReviews(_ context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.ReviewEntry

	for _, r := range c.reviews {
		if r.Status == status {
			out = append(out, r)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// ListOpenReviewKeys returns the labels with a pending or rejected review.
func (c *Catalog) ListOpenReviewKeys(_ context.Context, supplierID *int64) (map[domain.LabelKey]bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make(map[domain.LabelKey]bool)

	for _, r := range c.reviews {
		if !isOpen(r.Status) {
			continue
		}

		if supplierID != nil && r.SupplierID != *supplierID {
			continue
		}

		keys[domain.LabelKey{SupplierID: r.SupplierID, NormalizedLabel: r.NormalizedLabel}] = true
	}

	return keys, nil
}

// DecideReview applies a review transition and its resolution atomically.
func (c *Catalog) DecideReview(_ context.Context, d domain.ReviewDecision) (domain.ReviewEntry, domain.CommitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.reviews[d.ReviewID]
	if !ok {
		return domain.ReviewEntry{}, domain.CommitResult{}, coreerrors.ErrReviewNotFound
	}

	if !r.Status.CanTransition(d.To) {
		return r, domain.CommitResult{}, fmt.Errorf("%w: %s -> %s", coreerrors.ErrInvalidTransition, r.Status, d.To)
	}

	var (
		res domain.CommitResult
		err error
	)

	if d.Resolution != nil {
		if res, err = c.commitLocked(*d.Resolution); err != nil {
			return r, domain.CommitResult{}, err
		}
	}

	now := time.Now()
	r.Status = d.To
	r.ProductID = res.ProductID
	r.DecidedAt = &now
	c.reviews[r.ID] = r

	return r, res, nil
}

func isOpen(s domain.ReviewStatus) bool {
	return s == domain.ReviewPending || s == domain.ReviewRejected
}

// LabelEntry returns the stored cache entry of a key.
func (c *Catalog) LabelEntry(supplierID int64, normalizedLabel string) (domain.LabelCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.labels[domain.LabelKey{SupplierID: supplierID, NormalizedLabel: normalizedLabel}]

	return e, ok
}

// String summarizes the catalog for test failure output.
func (c *Catalog) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return "catalog{products=" + strconv.Itoa(len(c.products)) +
		" listings=" + strconv.Itoa(len(c.listings)) +
		" links=" + strconv.Itoa(len(c.links)) +
		" labels=" + strconv.Itoa(len(c.labels)) + "}"
}
