package catalog

import (
	"errors"
	"fmt"

	"ai_selector/internal/models"
)

var (
	// ErrInvalidCatalog is returned when a catalog fails validation
	ErrInvalidCatalog = errors.New("invalid catalog")

	// ErrProviderNotFound is returned when a provider is not in the catalog
	ErrProviderNotFound = errors.New("provider not in catalog")
)

// Offer is one provider model able to serve a capability.
type Offer struct {
	Provider models.ProviderID
	Price    models.ModelPrice
}

// Catalog is an immutable, validated snapshot of provider profiles. Declaration
// order is preserved and used as the tie-break wherever providers are ranked.
type Catalog struct {
	profiles []models.ProviderProfile
	index    map[models.ProviderID]int
}

// New validates profiles and builds a catalog from a private copy of them.
func New(profiles []models.ProviderProfile) (*Catalog, error) {
	c := &Catalog{
		profiles: make([]models.ProviderProfile, 0, len(profiles)),
		index:    make(map[models.ProviderID]int, len(profiles)),
	}

	for i := range profiles {
		p := cloneProfile(profiles[i])
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("%w: provider #%d: %v", ErrInvalidCatalog, i+1, err)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate provider %s", ErrInvalidCatalog, p.ID)
		}
		c.index[p.ID] = len(c.profiles)
		c.profiles = append(c.profiles, p)
	}

	return c, nil
}

func validateProfile(p models.ProviderProfile) error {
	if _, err := models.ParseProviderID(string(p.ID)); err != nil {
		return err
	}

	weights := []struct {
		name  string
		value float64
	}{
		{"base_weight", p.BaseWeight},
		{"performance_weight", p.PerformanceWeight},
		{"reliability_weight", p.ReliabilityWeight},
	}
	for _, w := range weights {
		if w.value < 0 || w.value > 1 {
			return fmt.Errorf("%s: %s must be within [0, 1], got %v", p.ID, w.name, w.value)
		}
	}

	for c := range p.Models {
		if _, err := models.ParseCapability(string(c)); err != nil {
			return fmt.Errorf("%s: %v", p.ID, err)
		}
	}

	for _, c := range models.KnownCapabilities {
		prices := p.Models[c]
		switch {
		case p.Capabilities.Has(c) && len(prices) == 0:
			return fmt.Errorf("%s: capability %s enabled without any model", p.ID, c)
		case !p.Capabilities.Has(c) && len(prices) > 0:
			return fmt.Errorf("%s: models listed for disabled capability %s", p.ID, c)
		}

		seen := make(map[string]bool, len(prices))
		for _, price := range prices {
			if err := price.Validate(c); err != nil {
				return fmt.Errorf("%s/%s: %v", p.ID, c, err)
			}
			if seen[price.Model] {
				return fmt.Errorf("%s/%s: duplicate model %s", p.ID, c, price.Model)
			}
			seen[price.Model] = true
		}
	}
	return nil
}

func cloneProfile(p models.ProviderProfile) models.ProviderProfile {
	out := p
	out.Models = make(map[models.Capability][]models.ModelPrice, len(p.Models))
	for c, prices := range p.Models {
		out.Models[c] = append([]models.ModelPrice(nil), prices...)
	}
	return out
}

// Len returns the number of providers.
func (c *Catalog) Len() int {
	return len(c.profiles)
}

// Providers returns all provider IDs in declaration order.
func (c *Catalog) Providers() []models.ProviderID {
	ids := make([]models.ProviderID, len(c.profiles))
	for i, p := range c.profiles {
		ids[i] = p.ID
	}
	return ids
}

// Profile returns a copy of the provider's profile.
func (c *Catalog) Profile(id models.ProviderID) (models.ProviderProfile, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.ProviderProfile{}, false
	}
	return cloneProfile(c.profiles[i]), true
}

// Profiles returns copies of all profiles in declaration order.
func (c *Catalog) Profiles() []models.ProviderProfile {
	out := make([]models.ProviderProfile, len(c.profiles))
	for i, p := range c.profiles {
		out[i] = cloneProfile(p)
	}
	return out
}

// ProvidersFor returns the providers offering a capability, in declaration order.
func (c *Catalog) ProvidersFor(capability models.Capability) []models.ProviderID {
	var ids []models.ProviderID
	for _, p := range c.profiles {
		if p.Capabilities.Has(capability) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// Offers reports whether the provider serves the capability.
func (c *Catalog) Offers(id models.ProviderID, capability models.Capability) bool {
	i, ok := c.index[id]
	return ok && c.profiles[i].Capabilities.Has(capability)
}

// CapabilityProfile returns the scoring view of a provider for a capability,
// priced at its default model.
func (c *Catalog) CapabilityProfile(id models.ProviderID, capability models.Capability) (models.ProviderCapabilityProfile, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.ProviderCapabilityProfile{}, false
	}
	p := &c.profiles[i]
	price, ok := p.DefaultModel(capability)
	if !ok {
		return models.ProviderCapabilityProfile{}, false
	}
	return models.ProviderCapabilityProfile{
		Provider:          p.ID,
		Capability:        capability,
		Model:             price.Model,
		CostPerUnit:       price.CostPerUnit,
		Unit:              price.Unit,
		BaseWeight:        p.BaseWeight,
		PerformanceWeight: p.PerformanceWeight,
		ReliabilityWeight: p.ReliabilityWeight,
	}, true
}

// CapabilityProfiles returns the scoring views of every provider offering the
// capability, in declaration order.
func (c *Catalog) CapabilityProfiles(capability models.Capability) []models.ProviderCapabilityProfile {
	var out []models.ProviderCapabilityProfile
	for _, p := range c.profiles {
		if cp, ok := c.CapabilityProfile(p.ID, capability); ok {
			out = append(out, cp)
		}
	}
	return out
}

// Price looks up a model's price. An empty model selects the provider's default.
func (c *Catalog) Price(id models.ProviderID, capability models.Capability, model string) (models.ModelPrice, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.ModelPrice{}, false
	}
	p := &c.profiles[i]
	if model == "" {
		return p.DefaultModel(capability)
	}
	for _, price := range p.Models[capability] {
		if price.Model == model {
			return price, true
		}
	}
	return models.ModelPrice{}, false
}

// Offerings returns every provider model serving the capability, providers in
// declaration order and models in listing order.
func (c *Catalog) Offerings(capability models.Capability) []Offer {
	var out []Offer
	for _, p := range c.profiles {
		if !p.Capabilities.Has(capability) {
			continue
		}
		for _, price := range p.Models[capability] {
			out = append(out, Offer{Provider: p.ID, Price: price})
		}
	}
	return out
}
