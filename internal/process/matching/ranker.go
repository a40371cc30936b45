package matching

import (
	"sort"
	"strings"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// DefaultTopN is the number of candidates kept per label.
const DefaultTopN = 3

// Index groups referential products by brand for one run. Products minted
// during the run are added so later labels can match them.
// Index is not safe for concurrent use; the run commits sequentially.
type Index struct {
	byBrand map[string][]domain.Product
	size    int
}

// NewIndex builds a brand index over products.
func NewIndex(products []domain.Product) *Index {
	idx := &Index{byBrand: make(map[string][]domain.Product)}
	for _, p := range products {
		idx.Add(p)
	}

	return idx
}

// Add indexes one product.
func (i *Index) Add(p domain.Product) {
	key := brandKey(p.Brand)
	if key == "" {
		return
	}

	i.byBrand[key] = append(i.byBrand[key], p)
	i.size++
}

// Len returns the number of indexed products.
func (i *Index) Len() int {
	return i.size
}

// ByBrand returns the products carrying brand.
func (i *Index) ByBrand(brand string) []domain.Product {
	return i.byBrand[brandKey(brand)]
}

func brandKey(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}

// Ranker scores same-brand products and keeps the best ones.
type Ranker struct {
	index *Index
	vocab *domain.Vocabulary
	topN  int
}

// NewRanker creates a ranker. A non-positive topN takes DefaultTopN.
func NewRanker(index *Index, vocab *domain.Vocabulary, topN int) *Ranker {
	if topN <= 0 {
		topN = DefaultTopN
	}

	return &Ranker{index: index, vocab: vocab, topN: topN}
}

// Rank returns up to topN non-zero candidates by score desc, product id asc.
func (r *Ranker) Rank(attrs *domain.Attributes) []domain.MatchCandidate {
	if !attrs.Usable() {
		return nil
	}

	products := r.index.ByBrand(attrs.Brand)
	candidates := make([]domain.MatchCandidate, 0, len(products))

	for _, p := range products {
		score, breakdown := Score(attrs, p, r.vocab)
		if score <= 0 {
			continue
		}

		candidates = append(candidates, domain.MatchCandidate{
			ProductID:   p.ID,
			Score:       score,
			Breakdown:   breakdown,
			DisplayName: p.DisplayName(),
		})
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score > candidates[b].Score
		}

		return candidates[a].ProductID < candidates[b].ProductID
	})

	if len(candidates) > r.topN {
		candidates = candidates[:r.topN]
	}

	return candidates
}
