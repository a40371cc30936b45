package llm

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

const extractionInstructions = `You extract structured product attributes from supplier catalog labels.

Return ONLY a JSON object of the form {"results": [...]} with exactly %d records,
one per label, in the same order, each carrying the "index" of its label.

Record fields:
- index: the label index shown in brackets
- brand: MUST be one of KNOWN BRANDS, spelled as listed; null when none applies
- model_family: commercial model name without brand, storage or color (e.g. "Galaxy S25 Ultra")
- storage: size in canonical form "<number> Go" or "<number> To" (e.g. "256 Go", "1 To"); null when absent
- color: canonical color from COLORS when the label uses a listed synonym; otherwise the color as written; null when absent
- device_type: one of DEVICE TYPES when it can be inferred; null otherwise
- region: market region only when the label states one (e.g. "US", "EU", "HK"); null means home region
- connectivity: e.g. "5G", "4G", "WiFi", "WiFi + Cellular"; null when absent
- grade: condition grade when stated (e.g. "A", "B", "Reconditionne"); null for new products
- confidence: number between 0 and 1

Rules:
1. When a label contains a code from MANUFACTURER CODES, use the mapped commercial name as model_family instead of parsing free text.
2. Never invent a brand outside KNOWN BRANDS.
3. Do not copy storage, color or brand words into model_family.
4. Unknown region is null, never a guess.`

// buildExtractionPrompt embeds the vocabularies and the numbered labels into one instruction payload.
func buildExtractionPrompt(labels []string, vocab *domain.Vocabulary) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(extractionInstructions, len(labels)))
	sb.WriteString("\n\n")

	writeList(&sb, "KNOWN BRANDS", vocabBrands(vocab))
	writeColors(&sb, vocab)
	writeList(&sb, "STORAGE SIZES", vocabStorage(vocab))
	writeCodes(&sb, vocab)
	writeList(&sb, "DEVICE TYPES", vocabDeviceTypes(vocab))

	sb.WriteString("LABELS:\n")

	for i, label := range labels {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i, strings.TrimSpace(label)))
	}

	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	sb.WriteString(title)
	sb.WriteString(": ")

	if len(items) == 0 {
		sb.WriteString("(none)")
	} else {
		sb.WriteString(strings.Join(items, ", "))
	}

	sb.WriteString("\n\n")
}

func writeColors(sb *strings.Builder, vocab *domain.Vocabulary) {
	sb.WriteString("COLORS (canonical: synonyms):\n")

	if vocab == nil {
		sb.WriteString("(none)\n\n")
		return
	}

	colors := vocab.ColorSynonyms()
	names := make([]string, 0, len(colors))

	for name := range colors {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, strings.Join(colors[name], ", ")))
	}

	sb.WriteString("\n")
}

func writeCodes(sb *strings.Builder, vocab *domain.Vocabulary) {
	sb.WriteString("MANUFACTURER CODES (code: commercial name):\n")

	if vocab == nil {
		sb.WriteString("(none)\n\n")
		return
	}

	codes := vocab.ManufacturerCodes()
	keys := make([]string, 0, len(codes))

	for code := range codes {
		keys = append(keys, code)
	}

	sort.Strings(keys)

	for _, code := range keys {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", code, codes[code]))
	}

	sb.WriteString("\n")
}

func vocabBrands(vocab *domain.Vocabulary) []string {
	if vocab == nil {
		return nil
	}

	return vocab.Brands()
}

func vocabStorage(vocab *domain.Vocabulary) []string {
	if vocab == nil {
		return nil
	}

	return vocab.StorageSizes()
}

func vocabDeviceTypes(vocab *domain.Vocabulary) []string {
	if vocab == nil {
		return nil
	}

	return vocab.DeviceTypes()
}

// truncate keeps at most limit runes of s.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	return string([]rune(s)[:limit]) + "..."
}
