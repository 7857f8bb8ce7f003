package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"ai_selector/internal/models"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Source loads a catalog snapshot.
type Source interface {
	Load(ctx context.Context) (*Catalog, error)
}

type document struct {
	Providers []providerDoc `yaml:"providers"`
}

type providerDoc struct {
	ID                string                `yaml:"id"`
	DisplayName       string                `yaml:"display_name"`
	BaseWeight        float64               `yaml:"base_weight"`
	PerformanceWeight float64               `yaml:"performance_weight"`
	ReliabilityWeight float64               `yaml:"reliability_weight"`
	Capabilities      models.CapabilitySet  `yaml:"capabilities"`
	Models            map[string][]modelDoc `yaml:"models"`
}

type modelDoc struct {
	Model       string  `yaml:"model"`
	CostPerUnit float64 `yaml:"cost_per_unit"`
	Unit        string  `yaml:"unit"`
}

// Parse decodes and validates a YAML catalog. Unknown keys are rejected and a
// missing unit defaults to the capability's unit.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidCatalog)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	profiles := make([]models.ProviderProfile, 0, len(doc.Providers))
	for _, pd := range doc.Providers {
		id, err := models.ParseProviderID(pd.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}

		p := models.ProviderProfile{
			ID:                id,
			DisplayName:       pd.DisplayName,
			BaseWeight:        pd.BaseWeight,
			PerformanceWeight: pd.PerformanceWeight,
			ReliabilityWeight: pd.ReliabilityWeight,
			Capabilities:      pd.Capabilities,
			Models:            make(map[models.Capability][]models.ModelPrice, len(pd.Models)),
		}
		if p.DisplayName == "" {
			p.DisplayName = string(id)
		}

		for capName, mds := range pd.Models {
			c, err := models.ParseCapability(capName)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, id, err)
			}
			for _, md := range mds {
				unit := models.PricingUnit(md.Unit)
				if unit == "" {
					unit = models.UnitFor(c)
				}
				p.Models[c] = append(p.Models[c], models.ModelPrice{
					Model:       md.Model,
					CostPerUnit: md.CostPerUnit,
					Unit:        unit,
				})
			}
		}
		profiles = append(profiles, p)
	}

	return New(profiles)
}

// FileSource reads a YAML catalog from disk on every Load.
type FileSource struct {
	Path string
}

// NewFileSource creates a source for the YAML file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) (*Catalog, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path, err)
	}
	return c, nil
}

// EmbeddedSource serves the catalog compiled into the binary.
type EmbeddedSource struct{}

func (EmbeddedSource) Load(ctx context.Context) (*Catalog, error) {
	return Default()
}

// Default parses the embedded default catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// StaticSource always returns the same catalog.
type StaticSource struct {
	Catalog *Catalog
}

func (s StaticSource) Load(ctx context.Context) (*Catalog, error) {
	if s.Catalog == nil {
		return nil, fmt.Errorf("%w: no catalog configured", ErrInvalidCatalog)
	}
	return s.Catalog, nil
}
