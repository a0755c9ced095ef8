// Package triage scores incoming messages and files them into tiers.
package triage

// Tier is the bucket a scored message lands in
type Tier string

const (
	TierCritical Tier = "critical"
	TierUrgent   Tier = "urgent"
	TierMedium   Tier = "medium"
	TierDigest   Tier = "digest"
)

// Thresholds are the lower score bounds for the tiers above digest.
// They must descend: Critical > Urgent > Medium.
type Thresholds struct {
	Critical float64
	Urgent   float64
	Medium   float64
}

// Labels maps tiers to provider label names
type Labels struct {
	Critical string
	Urgent   string
	Medium   string
	Digest   string
}

// Classify buckets a score into a tier. Boundary scores land in the
// higher tier; anything below Medium falls through to digest.
func (t Thresholds) Classify(score float64) Tier {
	switch {
	case score >= t.Critical:
		return TierCritical
	case score >= t.Urgent:
		return TierUrgent
	case score >= t.Medium:
		return TierMedium
	default:
		return TierDigest
	}
}

// For returns the label name for a tier
func (l Labels) For(tier Tier) string {
	switch tier {
	case TierCritical:
		return l.Critical
	case TierUrgent:
		return l.Urgent
	case TierMedium:
		return l.Medium
	default:
		return l.Digest
	}
}
