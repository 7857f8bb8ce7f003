package models

import (
	"fmt"
	"strings"
)

// ProviderID enumerates supported AI providers.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
	ProviderLocal     ProviderID = "local"
)

// KnownProviders lists every provider the registry accepts, in canonical order.
var KnownProviders = []ProviderID{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderLocal,
}

// ParseProviderID converts a case-insensitive name into a ProviderID.
func ParseProviderID(s string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownProviders {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Capability enumerates the kinds of generation a provider may offer.
type Capability string

const (
	CapabilityText       Capability = "text"
	CapabilityImage      Capability = "image"
	CapabilityModeration Capability = "moderation"
)

// KnownCapabilities lists all capabilities.
var KnownCapabilities = []Capability{
	CapabilityText,
	CapabilityImage,
	CapabilityModeration,
}

// ParseCapability converts a case-insensitive name into a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownCapabilities {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// CapabilitySet holds explicit per-provider capability flags.
type CapabilitySet struct {
	Text       bool `json:"text" yaml:"text"`
	Image      bool `json:"image" yaml:"image"`
	Moderation bool `json:"moderation" yaml:"moderation"`
}

// Has reports whether the set contains the capability.
func (s CapabilitySet) Has(c Capability) bool {
	switch c {
	case CapabilityText:
		return s.Text
	case CapabilityImage:
		return s.Image
	case CapabilityModeration:
		return s.Moderation
	default:
		return false
	}
}

// With returns a copy of the set with the capability enabled.
func (s CapabilitySet) With(c Capability) CapabilitySet {
	switch c {
	case CapabilityText:
		s.Text = true
	case CapabilityImage:
		s.Image = true
	case CapabilityModeration:
		s.Moderation = true
	}
	return s
}

// ProviderProfile is the registry entry for a provider: static weights used by the
// scorer plus the models it serves per capability. The first model listed for a
// capability is the provider's default for it.
type ProviderProfile struct {
	ID                ProviderID                  `json:"id"`
	DisplayName       string                      `json:"display_name"`
	BaseWeight        float64                     `json:"base_weight"`
	PerformanceWeight float64                     `json:"performance_weight"`
	ReliabilityWeight float64                     `json:"reliability_weight"`
	Capabilities      CapabilitySet               `json:"capabilities"`
	Models            map[Capability][]ModelPrice `json:"models"`
}

// DefaultModel returns the provider's default model for a capability.
func (p *ProviderProfile) DefaultModel(c Capability) (ModelPrice, bool) {
	if !p.Capabilities.Has(c) {
		return ModelPrice{}, false
	}
	prices := p.Models[c]
	if len(prices) == 0 {
		return ModelPrice{}, false
	}
	return prices[0], true
}

// ProviderCapabilityProfile is the provider x capability view used when scoring.
type ProviderCapabilityProfile struct {
	Provider          ProviderID  `json:"provider"`
	Capability        Capability  `json:"capability"`
	Model             string      `json:"model"`
	CostPerUnit       float64     `json:"cost_per_unit"`
	Unit              PricingUnit `json:"unit"`
	BaseWeight        float64     `json:"base_weight"`
	PerformanceWeight float64     `json:"performance_weight"`
	ReliabilityWeight float64     `json:"reliability_weight"`
}

// IsFree reports whether the default model costs nothing per unit.
func (p ProviderCapabilityProfile) IsFree() bool {
	return p.CostPerUnit == 0
}
