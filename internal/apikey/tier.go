package apikey

import "strings"

// Tier is the quota class a credential resolves to. Each tier carries an
// hourly ceiling and a short burst ceiling enforced by the rate limiter.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierStandard   Tier = "standard"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// TierLimits holds the base ceilings for a tier before endpoint cost
// multipliers are applied.
type TierLimits struct {
	HourlyMax int // Requests per 3600-second window
	BurstMax  int // Requests per 60-second window
}

var tierLimits = map[Tier]TierLimits{
	TierBasic:      {HourlyMax: 1000, BurstMax: 100},
	TierStandard:   {HourlyMax: 5000, BurstMax: 500},
	TierPremium:    {HourlyMax: 10000, BurstMax: 1000},
	TierEnterprise: {HourlyMax: 50000, BurstMax: 5000},
}

// Limits returns the base ceilings for the tier. Unknown tiers fall back
// to basic.
func (t Tier) Limits() TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierBasic]
}

// Known reports whether the tier names a configured quota class.
func (t Tier) Known() bool {
	_, ok := tierLimits[t]
	return ok
}

// ResolveTier maps a credential to its quota tier from organization
// attributes. The resolution is deterministic and side-effect free.
//
// Government-sector organizations resolve to premium; organizations with
// names longer than 20 characters resolve to standard (existing behavior
// carried over from the subscription heuristic, not a tuning knob);
// everything else, including anonymous callers, resolves to basic.
// Enterprise is reachable only through an explicit admin override.
func ResolveTier(cred *Credential) Tier {
	if cred == nil {
		return TierBasic
	}
	if cred.TierOverride.Known() {
		return cred.TierOverride
	}
	if strings.Contains(strings.ToLower(cred.Organization), "government") {
		return TierPremium
	}
	if len(cred.Organization) > 20 {
		return TierStandard
	}
	return TierBasic
}
