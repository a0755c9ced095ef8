package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	thresholds := Thresholds{Critical: 0.8, Urgent: 0.5, Medium: 0.4}

	cases := []struct {
		score float64
		want  Tier
	}{
		{1.0, TierCritical},
		{0.85, TierCritical},
		{0.8, TierCritical}, // boundary lands in the higher tier
		{0.79, TierUrgent},
		{0.55, TierUrgent},
		{0.5, TierUrgent},
		{0.42, TierMedium},
		{0.4, TierMedium},
		{0.39, TierDigest},
		{0.1, TierDigest},
		{0.0, TierDigest},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, thresholds.Classify(tc.score), "score %v", tc.score)
	}
}

func TestLabelsFor(t *testing.T) {
	labels := Labels{
		Critical: "AI/Critical",
		Urgent:   "AI/Urgent",
		Medium:   "AI/Medium",
		Digest:   "AI/DigestQueue",
	}

	assert.Equal(t, "AI/Critical", labels.For(TierCritical))
	assert.Equal(t, "AI/Urgent", labels.For(TierUrgent))
	assert.Equal(t, "AI/Medium", labels.For(TierMedium))
	assert.Equal(t, "AI/DigestQueue", labels.For(TierDigest))
}
