package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

func testVocabulary() *domain.Vocabulary {
	return domain.NewVocabulary(domain.VocabularyData{
		Brands: []string{"Samsung", "Apple"},
		ColorSynonyms: map[string][]string{
			"Noir":  {"black", "midnight"},
			"Blanc": {"white"},
		},
		StorageSizes:      []string{"128 Go", "256 Go"},
		ManufacturerCodes: map[string]string{"SM-S938B": "Galaxy S25 Ultra"},
		DeviceTypes:       []string{"Smartphone"},
	})
}

func TestMockProvider_ExtractAttributes(t *testing.T) {
	p := NewMockProvider()

	res, err := p.ExtractAttributes(context.Background(), []string{
		"Samsung Galaxy S25 Ultra 256Go Noir",
		"SAMSUNG SM-S938B 1To black",
		"Unknown gadget",
	}, testVocabulary())
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	first := res.Records[0]
	assert.Equal(t, "Samsung", first.Brand)
	assert.Equal(t, "Galaxy S25 Ultra", first.ModelFamily)
	assert.Equal(t, "256 Go", first.Storage)
	assert.Equal(t, "Noir", first.Color)

	second := res.Records[1]
	assert.Equal(t, "Samsung", second.Brand)
	assert.Equal(t, "Galaxy S25 Ultra", second.ModelFamily)
	assert.Equal(t, "1 To", second.Storage)
	assert.Equal(t, "Noir", second.Color)

	assert.False(t, res.Records[2].Usable())
	assert.Zero(t, res.Usage.PromptTokens)
}

func TestMockProvider_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockProvider().ExtractAttributes(ctx, []string{"x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
