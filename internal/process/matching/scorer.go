// Package matching scores extracted attributes against referential products
// and ranks the best candidates for a label.
package matching

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/process/normalize"
)

// Points per dimension. A perfect match sums to MaxScore.
const (
	PointsBrand   = 15
	PointsStorage = 25
	PointsModel   = 40
	PointsColor   = 15
	PointsRegion  = 5

	MaxScore = 100

	colorMismatchPenalty = -5
)

// Model similarity bands.
const (
	ratioExact = 0.95
	ratioClose = 0.80
	ratioLoose = 0.60

	closeBandFloor = 20
	closeBandSpan  = 15
	looseBandSpan  = 12
)

var storageTokenPattern = regexp.MustCompile(`^\d+(gb|tb|mb)$`)

// Score rates how well attrs describe product on a 0..100 scale.
// A brand or storage mismatch disqualifies the product and scores 0.
func Score(attrs *domain.Attributes, product domain.Product, vocab *domain.Vocabulary) (int, domain.ScoreBreakdown) {
	var b domain.ScoreBreakdown

	if attrs == nil || !brandsMatch(attrs.Brand, product.Brand) {
		return 0, domain.ScoreBreakdown{Disqualified: domain.DisqualifiedBrandMismatch}
	}

	b.Brand = PointsBrand

	wantStorage, haveStorage := normalize.Storage(attrs.Storage), normalize.Storage(product.Storage)

	switch {
	case wantStorage != "" && wantStorage == haveStorage:
		b.Storage = PointsStorage
	case wantStorage != "" && haveStorage != "":
		return 0, domain.ScoreBreakdown{Disqualified: domain.DisqualifiedStorageMismatch}
	}

	b.ModelRatio = modelRatio(attrs.ModelFamily, product.Model, product.Brand)
	b.Model = modelPoints(b.ModelRatio)
	b.Color = colorPoints(attrs.Color, product.Color, vocab)

	if strings.EqualFold(strings.TrimSpace(attrs.Region), strings.TrimSpace(product.Region)) {
		b.Region = PointsRegion
	}

	total := b.Brand + b.Storage + b.Model + b.Color + b.Region

	return min(max(total, 0), MaxScore), b
}

func brandsMatch(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && strings.EqualFold(a, b)
}

// modelRatio compares model names after dropping the brand prefix and storage tokens.
func modelRatio(extracted, model, brand string) float64 {
	a := modelKey(extracted, brand)
	b := modelKey(model, brand)

	if a == "" && b == "" {
		return 1
	}

	if a == "" || b == "" {
		return 0
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))

	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func modelKey(model, brand string) string {
	tokens := strings.Fields(normalize.Label(model))
	brandTokens := strings.Fields(normalize.Label(brand))

	for len(brandTokens) > 0 && len(tokens) >= len(brandTokens) && hasPrefix(tokens, brandTokens) {
		tokens = tokens[len(brandTokens):]
	}

	kept := tokens[:0]
	for _, t := range tokens {
		if !storageTokenPattern.MatchString(t) {
			kept = append(kept, t)
		}
	}

	return strings.Join(kept, " ")
}

func hasPrefix(tokens, prefix []string) bool {
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}

	return true
}

func modelPoints(ratio float64) int {
	switch {
	case ratio >= ratioExact:
		return PointsModel
	case ratio >= ratioClose:
		return closeBandFloor + int(math.Round((ratio-ratioClose)/(ratioExact-ratioClose)*closeBandSpan))
	case ratio >= ratioLoose:
		return int(math.Round((ratio - ratioLoose) / (ratioClose - ratioLoose) * looseBandSpan))
	default:
		return 0
	}
}

func colorPoints(want, have string, vocab *domain.Vocabulary) int {
	want, have = strings.TrimSpace(want), strings.TrimSpace(have)

	switch {
	case want == "" && have == "":
		return PointsColor
	case want == "" || have == "":
		return 0
	}

	if vocab != nil {
		want, have = vocab.CanonicalColor(want), vocab.CanonicalColor(have)
	}

	if strings.EqualFold(want, have) {
		return PointsColor
	}

	return colorMismatchPenalty
}
