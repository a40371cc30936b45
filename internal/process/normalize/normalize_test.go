package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", "   \t ", ""},
		{"punctuation only", "--/..", ""},
		{"case and spacing", "  Samsung   GALAXY s25 ", "samsung galaxy s25"},
		{"accents", "Écouteurs Sans-Fil Blanc", "ecouteurs sans fil blanc"},
		{"storage go", "Galaxy S25 Ultra 256 Go Noir", "galaxy s25 ultra 256gb noir"},
		{"storage glued", "Galaxy S25 Ultra 256go Noir", "galaxy s25 ultra 256gb noir"},
		{"storage gb", "Galaxy S25 Ultra 256GB Noir", "galaxy s25 ultra 256gb noir"},
		{"terabyte", "iPhone 16 Pro 1 To", "iphone 16 pro 1tb"},
		{"gigabytes as terabyte", "iPhone 16 Pro 1024Go", "iphone 16 pro 1tb"},
		{"plus suffix", "Galaxy S25+", "galaxy s25 plus"},
		{"network generation untouched", "Pixel 9 5G 128Go", "pixel 9 5g 128gb"},
		{"ram and storage", "Redmi Note 13 8Go/256Go", "redmi note 13 8gb 256gb"},
		{"word containing unit", "Tomate 2 tomates", "tomate 2 tomates"},
		{"glued to", "Disque SSD 2To externe", "disque ssd 2tb externe"},
		{"trailing mo", "Carte SD 512 Mo", "carte sd 512mb"},
		{"to as a word", "Adaptateur 2 to 1 câble", "adaptateur 2 to 1 cable"},
		{"mo as a word", "Garantie 3 mo incluse", "garantie 3 mo incluse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.in))
		})
	}
}

func TestLabel_StorageSpellingsCollapse(t *testing.T) {
	a := Label("Samsung Galaxy S25 Ultra 256GB Noir")
	b := Label("samsung galaxy s25 ultra 256 Go noir")
	c := Label("SAMSUNG-Galaxy-S25-Ultra-256go-Noir")

	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestLabel_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Samsung Galaxy S25 Ultra 256Go Noir",
		"iPhone 15 Pro Max (1 To) - Titane Naturel",
		"Écran 27\" 4K / 144Hz",
		"ﬁlter Straße 2048 GB",
		"Galaxy Z Fold6+ 512 gigas",
		"   ",
	}

	for _, in := range inputs {
		once := Label(in)
		assert.Equal(t, once, Label(once), "input %q", in)
	}
}

func TestStorage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"256 Go", "256gb"},
		{"256GB", "256gb"},
		{"1 To", "1tb"},
		{"2048go", "2tb"},
		{"2 to 1 câble", ""},
		{"128", "128gb"},
		{"Galaxy S25 128Go Noir", "128gb"},
		{"Noir", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Storage(tt.in))
		})
	}
}
