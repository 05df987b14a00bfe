// Package datasource detects where a photo dataset comes from and keeps
// received datasets in a local SQLite session store.
//
// A dataset can be a JSON document on disk, the processing backend's HTTP
// endpoint, or a session saved earlier in the store. Directories are
// scanned for candidates and the freshest one is picked.
package datasource

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SourceType identifies the type of data source
type SourceType string

const (
	// SourceTypeFile is a JSON dataset document on disk
	SourceTypeFile SourceType = "file"
	// SourceTypeHTTP is a backend endpoint returning a dataset document
	SourceTypeHTTP SourceType = "http"
	// SourceTypeSQLite is a session saved in the SQLite store
	SourceTypeSQLite SourceType = "sqlite"
)

// Priority values for source types (higher = preferred when equally fresh)
const (
	PrioritySQLite = 100
	PriorityFile   = 50
)

// sqlitePrefix introduces a session store reference: sqlite:<db>#<name>.
const sqlitePrefix = "sqlite:"

// Source describes where a dataset comes from.
type Source struct {
	// Type identifies the source type
	Type SourceType `json:"type"`
	// Location is the file path, URL, or database path
	Location string `json:"location"`
	// Name selects a session within a SQLite store
	Name string `json:"name,omitempty"`
	// Priority breaks ties between equally fresh candidates
	Priority int `json:"priority"`
	// ModTime is the last modification time of local sources
	ModTime time.Time `json:"mod_time"`
	// Size is the file size in bytes
	Size int64 `json:"size"`
}

// String returns the source in the form accepted by Detect.
func (s Source) String() string {
	if s.Type == SourceTypeSQLite {
		return sqlitePrefix + s.Location + "#" + s.Name
	}
	return s.Location
}

// Detect classifies a dataset location: sqlite:<db>#<name>, an http(s)
// URL, a directory (the freshest candidate inside it), or a file.
func Detect(location string) (Source, error) {
	location = strings.TrimSpace(location)
	switch {
	case location == "":
		return Source{}, fmt.Errorf("empty dataset location")

	case strings.HasPrefix(location, sqlitePrefix):
		rest := strings.TrimPrefix(location, sqlitePrefix)
		db, name, ok := strings.Cut(rest, "#")
		if !ok || db == "" || name == "" {
			return Source{}, fmt.Errorf("invalid sqlite reference %q: want sqlite:<db>#<name>", location)
		}
		return Source{Type: SourceTypeSQLite, Location: db, Name: name, Priority: PrioritySQLite}, nil

	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		return Source{Type: SourceTypeHTTP, Location: location}, nil
	}

	info, err := os.Stat(location)
	if err != nil {
		return Source{}, fmt.Errorf("dataset location: %w", err)
	}
	if info.IsDir() {
		sources, err := DiscoverSources(DiscoveryOptions{Dir: location})
		if err != nil {
			return Source{}, err
		}
		return SelectBestSource(sources)
	}
	return Source{
		Type:     SourceTypeFile,
		Location: location,
		Priority: PriorityFile,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}, nil
}

// DiscoveryOptions configures source discovery behavior
type DiscoveryOptions struct {
	// Dir is the directory to scan
	Dir string
	// Verbose enables detailed logging during discovery
	Verbose bool
	// Logger receives log messages when Verbose is true
	Logger func(msg string)
}

// DiscoverSources finds dataset documents (*.json) and the sessions of
// SQLite stores (*.db) in a directory, freshest first.
func DiscoverSources(opts DiscoveryOptions) ([]Source, error) {
	if opts.Logger == nil {
		opts.Logger = func(string) {}
	}
	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	var sources []Source
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		path := filepath.Join(opts.Dir, name)

		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			sources = append(sources, Source{
				Type:     SourceTypeFile,
				Location: path,
				Priority: PriorityFile,
				ModTime:  info.ModTime(),
				Size:     info.Size(),
			})
			if opts.Verbose {
				opts.Logger(fmt.Sprintf("Found dataset file: %s (mod=%s)", path, info.ModTime().Format(time.RFC3339)))
			}

		case ".db":
			found, err := discoverSessions(path)
			if err != nil {
				if opts.Verbose {
					opts.Logger(fmt.Sprintf("Skipping %s: %v", path, err))
				}
				continue
			}
			sources = append(sources, found...)
			if opts.Verbose {
				opts.Logger(fmt.Sprintf("Found %d sessions in %s", len(found), path))
			}
		}
	}

	// Sort by mod time, then priority
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].Priority > sources[j].Priority
		}
		return sources[i].ModTime.After(sources[j].ModTime)
	})
	return sources, nil
}

func discoverSessions(path string) ([]Source, error) {
	store, err := OpenStoreReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	sessions, err := store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Source{
			Type:     SourceTypeSQLite,
			Location: path,
			Name:     s.Name,
			Priority: PrioritySQLite,
			ModTime:  s.SavedAt,
		})
	}
	return out, nil
}

// SelectBestSource returns the first source of a DiscoverSources result.
func SelectBestSource(sources []Source) (Source, error) {
	if len(sources) == 0 {
		return Source{}, fmt.Errorf("no dataset sources found")
	}
	return sources[0], nil
}
