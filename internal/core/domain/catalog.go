package domain

import (
	"strings"
	"time"
)

// Listing is one supplier catalog row awaiting resolution.
// The resolver reads listings but never mutates them.
type Listing struct {
	ID          int64
	SupplierID  int64
	Label       string
	EAN         string
	PartNumber  string
	SupplierSKU string
	CreatedAt   time.Time
}

// Attributes is the structured record the extraction oracle produces for one label.
type Attributes struct {
	Brand        string  `json:"brand"`
	ModelFamily  string  `json:"model_family"`
	Storage      string  `json:"storage"`
	Color        string  `json:"color"`
	DeviceType   string  `json:"device_type"`
	Region       string  `json:"region"`
	Connectivity string  `json:"connectivity"`
	Grade        string  `json:"grade"`
	Confidence   float64 `json:"confidence"`
}

// Usable reports whether the record carries enough to score or mint a product.
func (a *Attributes) Usable() bool {
	return a != nil && strings.TrimSpace(a.Brand) != ""
}

// Product is an entry of the internal product referential.
type Product struct {
	ID         int64
	Brand      string
	Model      string
	Storage    string
	Color      string
	DeviceType string
	Region     string
	CreatedAt  time.Time
}

// DisplayName renders the product the way review screens list it.
func (p Product) DisplayName() string {
	parts := make([]string, 0, 4)

	for _, s := range []string{p.Brand, p.Model, p.Storage, p.Color} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, " ")
}

// ProductFromAttributes mints a referential product from an extracted record.
// Model falls back to the brand when the oracle found no model family.
func ProductFromAttributes(a *Attributes) Product {
	model := strings.TrimSpace(a.ModelFamily)
	if model == "" {
		model = strings.TrimSpace(a.Brand)
	}

	return Product{
		Brand:      strings.TrimSpace(a.Brand),
		Model:      model,
		Storage:    strings.TrimSpace(a.Storage),
		Color:      strings.TrimSpace(a.Color),
		DeviceType: strings.TrimSpace(a.DeviceType),
		Region:     strings.TrimSpace(a.Region),
	}
}

// Disqualification reasons recorded in a ScoreBreakdown.
const (
	DisqualifiedBrandMismatch   = "brand_mismatch"
	DisqualifiedStorageMismatch = "storage_mismatch"
)

// ScoreBreakdown holds per-dimension points of one scoring pass.
type ScoreBreakdown struct {
	Brand        int     `json:"brand"`
	Storage      int     `json:"storage"`
	Model        int     `json:"model"`
	Color        int     `json:"color"`
	Region       int     `json:"region"`
	ModelRatio   float64 `json:"model_ratio,omitempty"`
	Disqualified string  `json:"disqualified,omitempty"`
}

// MatchCandidate is one scored referential product for a label.
type MatchCandidate struct {
	ProductID   int64          `json:"product_id"`
	Score       int            `json:"score"`
	Breakdown   ScoreBreakdown `json:"breakdown"`
	DisplayName string         `json:"display_name"`
}
