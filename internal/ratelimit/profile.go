package ratelimit

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CostProfile maps path segments to cost multipliers. The multiplier
// scales a tier's hourly and burst ceilings for requests whose path
// contains the segment: effective = floor(tierLimit * multiplier).
// The longest matching segment wins.
type CostProfile struct {
	multipliers map[string]float64
	segments    []string // sorted longest-first for matching
}

// DefaultCostProfile returns the built-in endpoint cost profile for the
// government data surface.
func DefaultCostProfile() *CostProfile {
	return NewCostProfile(map[string]float64{
		// Light endpoints (low processing cost)
		"/test":   0.1,
		"/health": 0.1,
		"/ping":   0.1,

		// Medium endpoints
		"/stats":      0.5,
		"/volunteers": 1.0,
		"/ngos":       1.0,
		"/events":     1.0,

		// Heavy endpoints (high processing cost)
		"/campaigns": 2.0,
		"/reports":   2.0,

		// Admin endpoints (restricted)
		"/api-admin":       5.0,
		"/access-requests": 3.0,
	})
}

// NewCostProfile builds a profile from a segment-to-multiplier map.
func NewCostProfile(multipliers map[string]float64) *CostProfile {
	p := &CostProfile{multipliers: make(map[string]float64, len(multipliers))}
	for segment, m := range multipliers {
		p.multipliers[segment] = m
		p.segments = append(p.segments, segment)
	}
	// Longest segment wins, so order candidates longest-first.
	sort.Slice(p.segments, func(i, j int) bool {
		return len(p.segments[i]) > len(p.segments[j])
	})
	return p
}

// costProfileFile is the YAML shape of an endpoint cost profile.
type costProfileFile struct {
	Endpoints map[string]float64 `yaml:"endpoints"`
}

// LoadCostProfile reads a cost profile from a YAML file.
func LoadCostProfile(path string) (*CostProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cost profile: %w", err)
	}

	var file costProfileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse cost profile: %w", err)
	}

	if len(file.Endpoints) == 0 {
		return nil, fmt.Errorf("cost profile %s defines no endpoints", path)
	}
	for segment, m := range file.Endpoints {
		if m <= 0 {
			return nil, fmt.Errorf("cost profile %s: multiplier for %s must be positive", path, segment)
		}
	}

	return NewCostProfile(file.Endpoints), nil
}

// Multiplier returns the cost multiplier for the longest configured
// segment contained in path, or 1.0 when nothing matches.
func (p *CostProfile) Multiplier(path string) float64 {
	for _, segment := range p.segments {
		if strings.Contains(path, segment) {
			return p.multipliers[segment]
		}
	}
	return 1.0
}
