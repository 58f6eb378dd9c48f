// Package bandit implements Thompson Sampling experiment selection over
// Beta-distributed posteriors.
//
// No statistics/distribution library appears anywhere in the retrieved
// example corpus; Beta sampling is implemented here via the standard
// Marsaglia-Tsang gamma sampler over math/rand, since X/(X+Y) ~ Beta(a,b)
// when X ~ Gamma(a,1) and Y ~ Gamma(b,1) are independent.
package bandit

import (
	"math"
	"math/rand"
)

// Arm is one experiment's Beta(alpha, beta) posterior.
type Arm struct {
	ExperimentID string
	Alpha        float64
	Beta         float64
}

// Select samples each arm's Beta(alpha, beta) posterior independently and
// returns the experiment ID with the highest sample. Ties are broken by
// iteration order: a strictly-greater comparison keeps the first-seen
// maximum, matching the reference implementation's random.betavariate loop.
//
// Select returns false if arms is empty.
func Select(rng *rand.Rand, arms []Arm) (string, bool) {
	if len(arms) == 0 {
		return "", false
	}
	bestSample := -1.0
	bestID := ""
	for _, arm := range arms {
		sample := sampleBeta(rng, arm.Alpha, arm.Beta)
		if sample > bestSample {
			bestSample = sample
			bestID = arm.ExperimentID
		}
	}
	return bestID, true
}

// sampleBeta draws one sample from Beta(alpha, beta).
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0
	}
	return x / (x + y)
}

// sampleGamma draws one sample from Gamma(shape, 1) via Marsaglia and
// Tsang's method (2000), valid for shape > 0. Shapes below 1 are boosted by
// one and corrected via the standard u^(1/shape) transform.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		x2 := x * x
		if u < 1-0.0331*x2*x2 {
			return d * v
		}
		if math.Log(u) < 0.5*x2+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
