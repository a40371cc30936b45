package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// recordPayload is one extracted record as the oracle returns it.
// Nullable fields decode to "".
type recordPayload struct {
	Index        *int    `json:"index" validate:"required,min=0"`
	Brand        string  `json:"brand" validate:"max=80"`
	ModelFamily  string  `json:"model_family" validate:"max=160"`
	Storage      string  `json:"storage" validate:"max=40"`
	Color        string  `json:"color" validate:"max=80"`
	DeviceType   string  `json:"device_type" validate:"max=80"`
	Region       string  `json:"region" validate:"max=40"`
	Connectivity string  `json:"connectivity" validate:"max=40"`
	Grade        string  `json:"grade" validate:"max=40"`
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
}

func (p recordPayload) attributes() domain.Attributes {
	return domain.Attributes{
		Brand:        cleanNull(p.Brand),
		ModelFamily:  cleanNull(p.ModelFamily),
		Storage:      cleanNull(p.Storage),
		Color:        cleanNull(p.Color),
		DeviceType:   cleanNull(p.DeviceType),
		Region:       cleanNull(p.Region),
		Connectivity: cleanNull(p.Connectivity),
		Grade:        cleanNull(p.Grade),
		Confidence:   p.Confidence,
	}
}

// parseRecords decodes an oracle response into exactly n records aligned by index.
// Any shape, validation or alignment problem is reported as ErrMalformedResponse.
func parseRecords(content string, n int) ([]domain.Attributes, error) {
	payload := extractJSON(content)

	records := tryParseWrapper(payload)
	if records == nil {
		records = tryParseArray(payload)
	}

	if records == nil {
		records = tryFindArrayInJSON(payload)
	}

	if records == nil {
		return nil, fmt.Errorf("%w: no record list in %q", coreerrors.ErrMalformedResponse, truncate(content, truncateLengthShort))
	}

	for i := range records {
		if err := validate.Struct(records[i]); err != nil {
			return nil, fmt.Errorf("%w: record %d: %s", coreerrors.ErrMalformedResponse, i, validationMessage(err))
		}
	}

	return alignRecords(records, n)
}

// alignRecords orders records by their index. A response where every index
// is zero but the count matches is taken positionally.
func alignRecords(records []recordPayload, n int) ([]domain.Attributes, error) {
	if len(records) != n {
		return nil, fmt.Errorf("%w: got %d records for %d labels", coreerrors.ErrMalformedResponse, len(records), n)
	}

	if allZeroIndex(records) && n > 1 {
		out := make([]domain.Attributes, n)
		for i, r := range records {
			out[i] = r.attributes()
		}

		return out, nil
	}

	out := make([]domain.Attributes, n)
	seen := make([]bool, n)

	for _, r := range records {
		idx := *r.Index
		if idx >= n {
			return nil, fmt.Errorf("%w: index %d out of range", coreerrors.ErrMalformedResponse, idx)
		}

		if seen[idx] {
			return nil, fmt.Errorf("%w: duplicate index %d", coreerrors.ErrMalformedResponse, idx)
		}

		seen[idx] = true
		out[idx] = r.attributes()
	}

	return out, nil
}

func allZeroIndex(records []recordPayload) bool {
	for _, r := range records {
		if *r.Index != 0 {
			return false
		}
	}

	return true
}

func tryParseWrapper(content string) []recordPayload {
	var wrapper struct {
		Results []recordPayload `json:"results"`
	}

	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && wrapper.Results != nil {
		return wrapper.Results
	}

	return nil
}

func tryParseArray(content string) []recordPayload {
	var results []recordPayload

	if err := json.Unmarshal([]byte(content), &results); err == nil && results != nil {
		return results
	}

	return nil
}

func tryFindArrayInJSON(content string) []recordPayload {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}

	for _, v := range raw {
		var results []recordPayload
		if err := json.Unmarshal(v, &results); err == nil && len(results) > 0 {
			return results
		}
	}

	return nil
}

// extractJSON returns the first JSON value embedded in text, preferring arrays.
// Text that already is valid JSON is returned unchanged.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(stripCodeFence(text))
	if json.Valid([]byte(trimmed)) {
		return trimmed
	}

	for _, open := range []byte{'[', '{'} {
		for i := 0; i < len(trimmed); i++ {
			if trimmed[i] != open {
				continue
			}

			var raw json.RawMessage

			dec := json.NewDecoder(bytes.NewReader([]byte(trimmed[i:])))
			if err := dec.Decode(&raw); err == nil {
				return string(raw)
			}
		}
	}

	return text
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return text
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}

	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func cleanNull(s string) string {
	s = strings.TrimSpace(s)

	switch strings.ToLower(s) {
	case "null", "none", "n/a", "unknown":
		return ""
	}

	return s
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors) //nolint:errorlint // validator returns the concrete type
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("field %s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
	}

	return strings.Join(parts, "; ")
}
