package llm

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "valid object unchanged",
			input:    `{"results":[]}`,
			expected: `{"results":[]}`,
		},
		{
			name:     "array inside prose",
			input:    "Here you go: [1,2] done",
			expected: "[1,2]",
		},
		{
			name:     "markdown fence",
			input:    "```json\n{\"results\":[]}\n```",
			expected: `{"results":[]}`,
		},
		{
			name:     "array preferred over object",
			input:    `note {"a":1} then [1]`,
			expected: "[1]",
		},
		{
			name:     "invalid returns original",
			input:    "not json at all",
			expected: "not json at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.input))
		})
	}
}

func TestParseRecords_AlignsByIndex(t *testing.T) {
	content := `{"results":[
		{"index":1,"brand":"Apple","model_family":"iPhone 16","storage":"128 Go","confidence":0.9},
		{"index":0,"brand":"Samsung","model_family":"Galaxy S25 Ultra","color":"null","region":null,"confidence":0.8}
	]}`

	records, err := parseRecords(content, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Samsung", records[0].Brand)
	assert.Equal(t, "Galaxy S25 Ultra", records[0].ModelFamily)
	assert.Empty(t, records[0].Color)
	assert.Empty(t, records[0].Region)
	assert.Equal(t, "Apple", records[1].Brand)
	assert.Equal(t, "128 Go", records[1].Storage)
}

func TestParseRecords_BareArrayAndFences(t *testing.T) {
	content := "```json\n[{\"index\":0,\"brand\":\"Xiaomi\",\"confidence\":0.5}]\n```"

	records, err := parseRecords(content, 1)
	require.NoError(t, err)
	assert.Equal(t, "Xiaomi", records[0].Brand)
}

func TestParseRecords_ArrayUnderOtherKey(t *testing.T) {
	content := `{"items":[{"index":0,"brand":"Google","confidence":0.7}]}`

	records, err := parseRecords(content, 1)
	require.NoError(t, err)
	assert.Equal(t, "Google", records[0].Brand)
}

func TestParseRecords_AllZeroIndexIsPositional(t *testing.T) {
	content := `{"results":[
		{"index":0,"brand":"Apple","confidence":0.9},
		{"index":0,"brand":"Samsung","confidence":0.9}
	]}`

	records, err := parseRecords(content, 2)
	require.NoError(t, err)
	assert.Equal(t, "Apple", records[0].Brand)
	assert.Equal(t, "Samsung", records[1].Brand)
}

func TestParseRecords_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		n       int
	}{
		{name: "not json", content: "I cannot help with that", n: 1},
		{name: "count mismatch", content: `{"results":[{"index":0,"brand":"Apple","confidence":0.5}]}`, n: 2},
		{name: "duplicate index", content: `{"results":[{"index":1,"confidence":0.5},{"index":1,"confidence":0.5}]}`, n: 2},
		{name: "index out of range", content: `{"results":[{"index":0,"confidence":0.5},{"index":5,"confidence":0.5}]}`, n: 2},
		{name: "missing index", content: `{"results":[{"brand":"Apple","confidence":0.5}]}`, n: 1},
		{name: "confidence above one", content: `{"results":[{"index":0,"brand":"Apple","confidence":3}]}`, n: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRecords(tt.content, tt.n)
			require.Error(t, err)
			assert.ErrorIs(t, err, coreerrors.ErrMalformedResponse)
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"ascii", "abcdef", 3, "abc..."},
		{"multibyte kept whole", "écran noir", 2, "éc..."},
		{"cyrillic", "смартфон", 4, "смар..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
