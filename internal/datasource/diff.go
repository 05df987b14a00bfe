package datasource

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/photocluster/pkg/model"
)

// LevelDiff lists node changes within one level.
type LevelDiff struct {
	Level int `json:"level"`
	// Added contains node IDs present only in the new dataset
	Added []string `json:"added,omitempty"`
	// Removed contains node IDs present only in the old dataset
	Removed []string `json:"removed,omitempty"`
	// ImageChanged contains node IDs whose image reference changed
	ImageChanged []string `json:"image_changed,omitempty"`
	// LinksA and LinksB are the link counts of both versions
	LinksA int `json:"links_a"`
	LinksB int `json:"links_b"`
}

func (d LevelDiff) changed() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.ImageChanged) > 0 || d.LinksA != d.LinksB
}

// DatasetDiff represents differences between two versions of a dataset,
// for example before and after the watched file was rewritten.
type DatasetDiff struct {
	LevelsA int         `json:"levels_a"`
	LevelsB int         `json:"levels_b"`
	Levels  []LevelDiff `json:"levels,omitempty"`
}

// CompareDatasets compares a and b level by level. Levels present in only
// one of them count as all-added or all-removed.
func CompareDatasets(a, b *model.Dataset) DatasetDiff {
	d := DatasetDiff{LevelsA: levelsOf(a), LevelsB: levelsOf(b)}
	n := d.LevelsA
	if d.LevelsB > n {
		n = d.LevelsB
	}
	for i := 0; i < n; i++ {
		la, _ := a.Level(i)
		lb, _ := b.Level(i)
		ld := compareLevels(i, la, lb)
		if ld.changed() {
			d.Levels = append(d.Levels, ld)
		}
	}
	return d
}

func compareLevels(i int, a, b *model.Level) LevelDiff {
	d := LevelDiff{Level: i}
	old := make(map[string]*model.Node)
	if a != nil {
		d.LinksA = len(a.Links)
		for _, n := range a.Nodes {
			old[n.ID] = n
		}
	}
	seen := make(map[string]bool)
	if b != nil {
		d.LinksB = len(b.Links)
		for _, n := range b.Nodes {
			seen[n.ID] = true
			prev, ok := old[n.ID]
			switch {
			case !ok:
				d.Added = append(d.Added, n.ID)
			case prev.ImageRef() != n.ImageRef():
				d.ImageChanged = append(d.ImageChanged, n.ID)
			}
		}
	}
	if a != nil {
		for _, n := range a.Nodes {
			if !seen[n.ID] {
				d.Removed = append(d.Removed, n.ID)
			}
		}
	}
	return d
}

// HasChanges returns true if the datasets differ in any way tracked here
func (d DatasetDiff) HasChanges() bool {
	return d.LevelsA != d.LevelsB || len(d.Levels) > 0
}

// Summary returns a human-readable summary of the differences
func (d DatasetDiff) Summary() string {
	if !d.HasChanges() {
		return fmt.Sprintf("Datasets match (%d levels)", d.LevelsA)
	}

	var b strings.Builder
	if d.LevelsA != d.LevelsB {
		fmt.Fprintf(&b, "Level count changed: %d -> %d\n", d.LevelsA, d.LevelsB)
	}
	for _, l := range d.Levels {
		fmt.Fprintf(&b, "Level %d:\n", l.Level)
		writeIDs(&b, "added", l.Added)
		writeIDs(&b, "removed", l.Removed)
		writeIDs(&b, "with a new image", l.ImageChanged)
		if l.LinksA != l.LinksB {
			fmt.Fprintf(&b, "  - links: %d -> %d\n", l.LinksA, l.LinksB)
		}
	}
	return b.String()
}

func writeIDs(b *strings.Builder, what string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "  - %d nodes %s\n", len(ids), what)
	if len(ids) <= 5 {
		for _, id := range ids {
			fmt.Fprintf(b, "    - %s\n", id)
		}
	}
}

func levelsOf(ds *model.Dataset) int {
	if ds == nil {
		return 0
	}
	return len(ds.Levels)
}
