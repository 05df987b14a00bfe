// Package testutil provides deterministic fixtures shared by package tests:
// generated photo datasets, encoded images, a scripted image fetcher and a
// recording renderer.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/vanderheijden86/photocluster/pkg/model"
)

// GeneratorConfig controls dataset generation.
type GeneratorConfig struct {
	Seed     int64     // Random seed for determinism (0 = use current time)
	Nodes    int       // Nodes per level (default 12)
	Clusters int       // Cluster count; nodes beyond are noise (-1)
	Levels   int       // Number of levels (default 1)
	Placed   bool      // Assign random positions
	BaseURL  string    // Prefix for image URLs (default "/photos")
	BaseTime time.Time // Timestamp of the first photo
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		Nodes:    12,
		Clusters: 3,
		Levels:   1,
		Placed:   true,
		BaseURL:  "/photos",
		BaseTime: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Dataset generates a dataset whose links chain consecutive members of
// each cluster, the way the processing backend links DBSCAN clusters.
func Dataset(cfg GeneratorConfig) *model.Dataset {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.Nodes <= 0 {
		cfg.Nodes = 12
	}
	if cfg.Levels <= 0 {
		cfg.Levels = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/photos"
	}
	rng := rand.New(rand.NewSource(seed))

	ds := &model.Dataset{}
	for l := 0; l < cfg.Levels; l++ {
		var level model.Level
		members := make(map[int][]string)
		for i := 0; i < cfg.Nodes; i++ {
			cluster := -1
			if cfg.Clusters > 0 {
				cluster = i % (cfg.Clusters + 1)
				if cluster == cfg.Clusters {
					cluster = -1
				}
			}
			ts := cfg.BaseTime.Add(time.Duration(i) * time.Hour)
			n := &model.Node{
				ID:        fmt.Sprintf("%d", i),
				ImageURL:  fmt.Sprintf("%s/L%d/img_%03d.jpg", cfg.BaseURL, l, i),
				Filename:  fmt.Sprintf("img_%03d.jpg", i),
				Cluster:   cluster,
				FaceCount: rng.Intn(4),
				DateTime:  &ts,
			}
			if cfg.Placed {
				n.X = rng.Float64()*400 - 200
				n.Y = rng.Float64()*400 - 200
				n.Z = rng.Float64()*400 - 200
				n.Placed = true
			}
			level.Nodes = append(level.Nodes, n)
			if cluster >= 0 {
				members[cluster] = append(members[cluster], n.ID)
			}
		}
		for c := 0; c < cfg.Clusters; c++ {
			ids := members[c]
			for j := 0; j+1 < len(ids); j++ {
				level.Links = append(level.Links, model.Link{Source: ids[j], Target: ids[j+1]})
			}
		}
		ds.Levels = append(ds.Levels, level)
	}
	return ds
}
