package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

var mockStoragePattern = regexp.MustCompile(`(?i)\b(\d+)\s*(go|gb|to|tb)\b`)

// mockProvider extracts attributes with vocabulary lookups only. It makes no
// network calls and reports zero usage, which makes it suitable for local
// runs and tests.
type mockProvider struct{}

// NewMockProvider creates the offline oracle.
func NewMockProvider() Oracle {
	return &mockProvider{}
}

func (p *mockProvider) Name() ProviderName {
	return ProviderMock
}

func (p *mockProvider) ExtractAttributes(ctx context.Context, labels []string, vocab *domain.Vocabulary) (ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return ExtractionResult{}, err
	}

	records := make([]domain.Attributes, len(labels))
	for i, label := range labels {
		records[i] = mockExtract(label, vocab)
	}

	return ExtractionResult{Records: records}, nil
}

func mockExtract(label string, vocab *domain.Vocabulary) domain.Attributes {
	attrs := domain.Attributes{Confidence: mockConfidence}

	if m := mockStoragePattern.FindStringSubmatch(label); m != nil {
		unit := "Go"
		if strings.EqualFold(m[2], "to") || strings.EqualFold(m[2], "tb") {
			unit = "To"
		}

		attrs.Storage = m[1] + " " + unit
		label = strings.Replace(label, m[0], " ", 1)
	}

	words := strings.Fields(label)
	rest := make([]string, 0, len(words))

	for _, w := range words {
		switch {
		case attrs.Brand == "" && vocab != nil && vocab.HasBrand(w):
			attrs.Brand = vocab.CanonicalBrand(w)
		case attrs.Color == "" && vocab != nil && vocab.IsColor(w):
			attrs.Color = vocab.CanonicalColor(w)
		default:
			if vocab != nil {
				if name, ok := vocab.CommercialName(w); ok {
					attrs.ModelFamily = name
					continue
				}
			}

			rest = append(rest, w)
		}
	}

	if attrs.ModelFamily == "" {
		attrs.ModelFamily = strings.Join(rest, " ")
	}

	return attrs
}
