package cdpengine

import (
	"context"
	"math/rand"
	"time"

	"github.com/aquilax/go-perlin"
)

// Pacing bounds. Key delays model inter-keystroke cadence; action pauses
// model the beat between deciding and acting.
const (
	minKeyDelay    = 40 * time.Millisecond
	maxKeyDelay    = 140 * time.Millisecond
	minActionPause = 150 * time.Millisecond
	maxActionPause = 600 * time.Millisecond
)

// pacer produces human-looking delays between interactions. Perlin noise
// drives the variation: adjacent delays correlate, so a run drifts between
// quick and sluggish stretches instead of scattering uniformly.
type pacer struct {
	on    bool
	rng   *rand.Rand
	noise *perlin.Perlin
	t     float64
}

func newPacer(enabled bool) *pacer {
	seed := time.Now().UnixNano()
	return &pacer{
		on:    enabled,
		rng:   rand.New(rand.NewSource(seed)),
		noise: perlin.NewPerlin(2.0, 2.0, 3, seed),
	}
}

func (p *pacer) enabled() bool { return p != nil && p.on }

// keyDelay returns the pause before the next keystroke.
func (p *pacer) keyDelay() time.Duration {
	return p.jittered(minKeyDelay, maxKeyDelay)
}

// pause blocks for one inter-action beat, honoring ctx. Disabled pacers
// return immediately.
func (p *pacer) pause(ctx context.Context) error {
	if !p.enabled() {
		return nil
	}
	timer := time.NewTimer(p.jittered(minActionPause, maxActionPause))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jittered maps the next noise sample into [min, max].
func (p *pacer) jittered(min, max time.Duration) time.Duration {
	if !p.enabled() {
		return 0
	}
	p.t += 0.1 + p.rng.Float64()*0.05
	// Noise1D is roughly within [-1, 1]; fold it into [0, 1].
	sample := (p.noise.Noise1D(p.t) + 1.0) / 2.0
	if sample < 0 {
		sample = 0
	}
	if sample > 1 {
		sample = 1
	}
	return min + time.Duration(sample*float64(max-min))
}
