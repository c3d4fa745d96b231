// Package collector reads candidate snapshots published by the extraction
// side and turns them into a validated universe.
package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"IPOAllocator/internal/model"
)

// Universe is a validated, de-duplicated candidate set.
type Universe struct {
	GeneratedAt time.Time
	Source      string
	Candidates  []model.Candidate
	Dropped     int
}

// Collector fetches a snapshot and converts it into candidates.
type Collector struct {
	Source Source
	log    zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(source Source, log zerolog.Logger) *Collector {
	return &Collector{
		Source: source,
		log:    log.With().Str("component", "collector").Str("source", source.Name()).Logger(),
	}
}

// Collect fetches one snapshot. Invalid records and repeated names are
// dropped with a warning; the first occurrence of a name wins.
func (c *Collector) Collect(ctx context.Context) (*Universe, error) {
	snap, err := c.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", c.Source.Name(), err)
	}

	u := &Universe{
		GeneratedAt: snap.GeneratedAt,
		Source:      snap.Source,
		Candidates:  make([]model.Candidate, 0, len(snap.Records)),
	}
	seen := make(map[string]bool, len(snap.Records))
	for _, r := range snap.Records {
		cand, err := r.Candidate()
		if err != nil {
			u.Dropped++
			c.log.Warn().Str("candidate", r.Name).Err(err).Msg("dropping invalid record")
			continue
		}
		key := strings.ToLower(cand.Name)
		if seen[key] {
			u.Dropped++
			c.log.Warn().Str("candidate", cand.Name).Msg("dropping duplicate record")
			continue
		}
		seen[key] = true
		u.Candidates = append(u.Candidates, cand)
	}

	c.log.Info().
		Int("records", len(snap.Records)).
		Int("candidates", len(u.Candidates)).
		Int("dropped", u.Dropped).
		Time("generated_at", snap.GeneratedAt).
		Msg("snapshot collected")
	return u, nil
}
