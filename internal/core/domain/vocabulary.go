package domain

import (
	"sort"
	"strings"
)

// VocabularyData is the raw content of a referential vocabulary snapshot.
type VocabularyData struct {
	Brands            []string
	ColorSynonyms     map[string][]string
	StorageSizes      []string
	ManufacturerCodes map[string]string
	DeviceTypes       []string
}

// Vocabulary is an immutable snapshot of the referential's controlled vocabularies.
// One snapshot is shared by extraction and scoring for a whole run.
type Vocabulary struct {
	brands            []string
	brandIndex        map[string]string
	colorSynonyms     map[string][]string
	colorIndex        map[string]string
	storageSizes      []string
	manufacturerCodes map[string]string
	deviceTypes       []string
}

// NewVocabulary copies data into an immutable snapshot.
func NewVocabulary(data VocabularyData) *Vocabulary {
	v := &Vocabulary{
		brands:            dedupeSorted(data.Brands),
		brandIndex:        make(map[string]string, len(data.Brands)),
		colorSynonyms:     make(map[string][]string, len(data.ColorSynonyms)),
		colorIndex:        make(map[string]string),
		storageSizes:      dedupeSorted(data.StorageSizes),
		manufacturerCodes: make(map[string]string, len(data.ManufacturerCodes)),
		deviceTypes:       dedupeSorted(data.DeviceTypes),
	}

	for _, b := range v.brands {
		v.brandIndex[foldKey(b)] = b
	}

	for color, synonyms := range data.ColorSynonyms {
		color = strings.TrimSpace(color)
		if color == "" {
			continue
		}

		v.colorSynonyms[color] = dedupeSorted(synonyms)
		v.colorIndex[foldKey(color)] = color

		for _, syn := range synonyms {
			if key := foldKey(syn); key != "" {
				v.colorIndex[key] = color
			}
		}
	}

	for code, name := range data.ManufacturerCodes {
		if key := codeKey(code); key != "" {
			v.manufacturerCodes[key] = strings.TrimSpace(name)
		}
	}

	return v
}

// Brands returns the known brand names, sorted.
func (v *Vocabulary) Brands() []string {
	return append([]string(nil), v.brands...)
}

// StorageSizes returns the known storage options, sorted.
func (v *Vocabulary) StorageSizes() []string {
	return append([]string(nil), v.storageSizes...)
}

// DeviceTypes returns the known device type names, sorted.
func (v *Vocabulary) DeviceTypes() []string {
	return append([]string(nil), v.deviceTypes...)
}

// ColorSynonyms returns a copy of the canonical color to synonyms table.
func (v *Vocabulary) ColorSynonyms() map[string][]string {
	out := make(map[string][]string, len(v.colorSynonyms))
	for k, syn := range v.colorSynonyms {
		out[k] = append([]string(nil), syn...)
	}

	return out
}

// ManufacturerCodes returns a copy of the manufacturer code table.
func (v *Vocabulary) ManufacturerCodes() map[string]string {
	out := make(map[string]string, len(v.manufacturerCodes))
	for k, name := range v.manufacturerCodes {
		out[k] = name
	}

	return out
}

// HasBrand reports whether brand is part of the known set, case-insensitively.
func (v *Vocabulary) HasBrand(brand string) bool {
	_, ok := v.brandIndex[foldKey(brand)]
	return ok
}

// CanonicalBrand returns the referential spelling of brand, or brand itself when unknown.
func (v *Vocabulary) CanonicalBrand(brand string) string {
	if b, ok := v.brandIndex[foldKey(brand)]; ok {
		return b
	}

	return strings.TrimSpace(brand)
}

// CanonicalColor maps a color or one of its synonyms to the canonical color.
// Unknown colors are returned trimmed.
func (v *Vocabulary) CanonicalColor(color string) string {
	if c, ok := v.colorIndex[foldKey(color)]; ok {
		return c
	}

	return strings.TrimSpace(color)
}

// IsColor reports whether color is a canonical color or a known synonym.
func (v *Vocabulary) IsColor(color string) bool {
	_, ok := v.colorIndex[foldKey(color)]
	return ok
}

// CommercialName resolves a manufacturer code to its commercial model name.
func (v *Vocabulary) CommercialName(code string) (string, bool) {
	name, ok := v.manufacturerCodes[codeKey(code)]
	return name, ok
}

func foldKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func codeKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func dedupeSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[foldKey(s)] {
			continue
		}

		seen[foldKey(s)] = true
		out = append(out, s)
	}

	sort.Strings(out)

	return out
}
