// Package vocabulary snapshots the referential's controlled vocabularies for one run.
package vocabulary

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// Source is read access to the referential tables the snapshot is built from.
type Source interface {
	ListBrands(ctx context.Context) ([]string, error)
	ListColorSynonyms(ctx context.Context) (map[string][]string, error)
	ListStorageOptions(ctx context.Context) ([]string, error)
	ListManufacturerCodes(ctx context.Context) (map[string]string, error)
	ListDeviceTypes(ctx context.Context) ([]string, error)
}

// Builder loads vocabulary snapshots from a Source.
type Builder struct {
	source Source
	logger *zerolog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(source Source, logger *zerolog.Logger) *Builder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Builder{source: source, logger: logger}
}

// Build reads every vocabulary table concurrently and returns an immutable snapshot.
func (b *Builder) Build(ctx context.Context) (*domain.Vocabulary, error) {
	var data domain.VocabularyData

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		brands, err := b.source.ListBrands(gctx)
		if err != nil {
			return fmt.Errorf("list brands: %w", err)
		}

		data.Brands = brands

		return nil
	})

	g.Go(func() error {
		colors, err := b.source.ListColorSynonyms(gctx)
		if err != nil {
			return fmt.Errorf("list color synonyms: %w", err)
		}

		data.ColorSynonyms = colors

		return nil
	})

	g.Go(func() error {
		sizes, err := b.source.ListStorageOptions(gctx)
		if err != nil {
			return fmt.Errorf("list storage options: %w", err)
		}

		data.StorageSizes = sizes

		return nil
	})

	g.Go(func() error {
		codes, err := b.source.ListManufacturerCodes(gctx)
		if err != nil {
			return fmt.Errorf("list manufacturer codes: %w", err)
		}

		data.ManufacturerCodes = codes

		return nil
	})

	g.Go(func() error {
		types, err := b.source.ListDeviceTypes(gctx)
		if err != nil {
			return fmt.Errorf("list device types: %w", err)
		}

		data.DeviceTypes = types

		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build vocabulary: %w", err)
	}

	vocab := domain.NewVocabulary(data)

	b.logger.Debug().
		Int("brands", len(data.Brands)).
		Int("colors", len(data.ColorSynonyms)).
		Int("storage_sizes", len(data.StorageSizes)).
		Int("manufacturer_codes", len(data.ManufacturerCodes)).
		Int("device_types", len(data.DeviceTypes)).
		Msg("vocabulary snapshot built")

	return vocab, nil
}
