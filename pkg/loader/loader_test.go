package loader_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/photocluster/pkg/loader"
	"github.com/vanderheijden86/photocluster/pkg/model"
)

// =============================================================================
// Parse Tests
// =============================================================================

const backendResponse = `{
  "nodes": [
    {"id": "0", "filename": "beach.jpg", "cluster": 0, "faceCount": 2, "lat": 52.1, "lon": 4.3, "dateTime": "2023-07-01T10:15:00"},
    {"id": "1", "filename": "dunes.jpg", "cluster": 0, "faceCount": 0, "lat": 52.2, "lon": 4.4, "dateTime": null},
    {"id": "2", "filename": "city.jpg", "cluster": -1, "faceCount": 5, "lat": 0, "lon": 0, "dateTime": "2023-07-02T08:00:00"}
  ],
  "links": [{"source": "0", "target": "1"}]
}`

func TestParse_SingleLevel(t *testing.T) {
	ds, err := loader.Parse(strings.NewReader(backendResponse))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds.Levels) != 1 {
		t.Fatalf("Expected 1 level, got %d", len(ds.Levels))
	}
	level := ds.Levels[0]
	if len(level.Nodes) != 3 || len(level.Links) != 1 {
		t.Fatalf("Expected 3 nodes and 1 link, got %d and %d", len(level.Nodes), len(level.Links))
	}

	n := level.Nodes[0]
	if n.ImageRef() != "beach.jpg" {
		t.Errorf("Expected filename fallback, got %q", n.ImageRef())
	}
	if n.DateTime == nil || n.DateTime.Hour() != 10 || n.DateTime.Minute() != 15 {
		t.Errorf("Unexpected dateTime %v", n.DateTime)
	}
	if n.Lat == nil || *n.Lat != 52.1 {
		t.Errorf("Unexpected lat %v", n.Lat)
	}
	if n.Placed {
		t.Error("Node without coordinates should not be placed")
	}
	if level.Nodes[1].DateTime != nil {
		t.Error("null dateTime should stay nil")
	}
}

func TestParse_Levels(t *testing.T) {
	doc := `{"levels": [
		{"nodes": [{"id": "a", "imageUrl": "/img/a.jpg", "x": 1, "y": 2, "z": 3}], "links": []},
		{"nodes": [{"id": 7, "imageUrl": "https://cdn/b.jpg"}], "links": []}
	]}`
	ds, err := loader.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ds.Levels) != 2 {
		t.Fatalf("Expected 2 levels, got %d", len(ds.Levels))
	}
	a := ds.Levels[0].Nodes[0]
	if !a.Placed || a.X != 1 || a.Y != 2 || a.Z != 3 {
		t.Errorf("Unexpected position %+v", a)
	}
	if ds.Levels[1].Nodes[0].ID != "7" {
		t.Errorf("Numeric id should decode as string, got %q", ds.Levels[1].Nodes[0].ID)
	}
}

func TestParse_BareArray(t *testing.T) {
	ds, err := loader.Parse(strings.NewReader(`[{"nodes":[{"id":"x"}],"links":[]}]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ds.NodeCount() != 1 {
		t.Fatalf("Expected 1 node, got %d", ds.NodeCount())
	}
}

func TestParse_BOM(t *testing.T) {
	ds, err := loader.Parse(strings.NewReader("\xEF\xBB\xBF" + backendResponse))
	if err != nil {
		t.Fatalf("Parse with BOM: %v", err)
	}
	if ds.NodeCount() != 3 {
		t.Fatalf("Expected 3 nodes, got %d", ds.NodeCount())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", "", loader.ErrEmptyDataset},
		{"no levels", `{"levels": []}`, loader.ErrEmptyDataset},
		{"empty object", `{}`, loader.ErrEmptyDataset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Parse(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := loader.Parse(strings.NewReader(`{"nodes": [`)); err == nil {
		t.Error("Expected error for truncated JSON")
	}

	_, err := loader.Parse(strings.NewReader(`{"error": "No files received"}`))
	var be *loader.BackendError
	if !errors.As(err, &be) || be.Message != "No files received" {
		t.Errorf("Expected BackendError, got %v", err)
	}
}

func TestParse_BadTimestampWarns(t *testing.T) {
	var warnings []string
	ds, err := loader.ParseWithOptions(strings.NewReader(`{"nodes":[{"id":"a","dateTime":"yesterday"}],"links":[]}`), loader.ParseOptions{
		WarningHandler: func(msg string) { warnings = append(warnings, msg) },
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", warnings)
	}
	if ds.Levels[0].Nodes[0].DateTime != nil {
		t.Error("Unparseable timestamp should be dropped")
	}
}

func TestParse_MaxBytes(t *testing.T) {
	_, err := loader.ParseWithOptions(strings.NewReader(backendResponse), loader.ParseOptions{MaxBytes: 16})
	if err == nil {
		t.Fatal("Expected size limit error")
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate(t *testing.T) {
	dup := &model.Dataset{Levels: []model.Level{{
		Nodes: []*model.Node{{ID: "a"}, {ID: "a"}},
	}}}
	if err := loader.Validate(dup); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate id error, got %v", err)
	}

	dangling := &model.Dataset{Levels: []model.Level{{
		Nodes: []*model.Node{{ID: "a"}},
		Links: []model.Link{{Source: "a", Target: "b"}},
	}}}
	if err := loader.Validate(dangling); err == nil || !strings.Contains(err.Error(), "unknown node") {
		t.Errorf("Expected unknown node error, got %v", err)
	}

	if err := loader.Validate(nil); !errors.Is(err, loader.ErrEmptyDataset) {
		t.Errorf("Expected ErrEmptyDataset, got %v", err)
	}

	// IDs only need to be unique within a level.
	ok := &model.Dataset{Levels: []model.Level{
		{Nodes: []*model.Node{{ID: "a"}}},
		{Nodes: []*model.Node{{ID: "a"}}},
	}}
	if err := loader.Validate(ok); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestParse_SkipValidation(t *testing.T) {
	doc := `{"nodes":[{"id":"a"},{"id":"a"}],"links":[]}`
	if _, err := loader.Parse(strings.NewReader(doc)); err == nil {
		t.Fatal("Expected validation error")
	}
	if _, err := loader.ParseWithOptions(strings.NewReader(doc), loader.ParseOptions{SkipValidation: true}); err != nil {
		t.Fatalf("Unexpected error with SkipValidation: %v", err)
	}
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestResolve(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://localhost:5000", "/uploads/a.jpg", "http://localhost:5000/uploads/a.jpg"},
		{"http://localhost:5000/api/", "uploads/a.jpg", "http://localhost:5000/api/uploads/a.jpg"},
		{"http://localhost:5000/api", "a.jpg", "http://localhost:5000/a.jpg"},
		{"http://localhost:5000", "https://cdn.example.com/a.jpg", "https://cdn.example.com/a.jpg"},
		{"", "a.jpg", "a.jpg"},
		{"file:///data/photos/", "a.jpg", "file:///data/photos/a.jpg"},
	}
	for _, tt := range tests {
		got, err := loader.Resolve(tt.base, tt.ref)
		if err != nil {
			t.Errorf("Resolve(%q, %q): %v", tt.base, tt.ref, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", tt.base, tt.ref, got, tt.want)
		}
	}
}

func TestBaseURL(t *testing.T) {
	t.Setenv(loader.APIURLEnvVar, "")
	if got := loader.BaseURL(""); got != loader.DefaultBaseURL {
		t.Errorf("BaseURL(\"\") = %q", got)
	}
	if got := loader.BaseURL("http://api"); got != "http://api" {
		t.Errorf("BaseURL(configured) = %q", got)
	}
	t.Setenv(loader.APIURLEnvVar, "http://env")
	if got := loader.BaseURL("http://api"); got != "http://env" {
		t.Errorf("env should win, got %q", got)
	}
}

// =============================================================================
// File and HTTP Tests
// =============================================================================

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.json")
	if err := os.WriteFile(path, []byte(backendResponse), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := loader.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if ds.NodeCount() != 3 {
		t.Fatalf("Expected 3 nodes, got %d", ds.NodeCount())
	}

	if _, err := loader.LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/levels":
			w.Write([]byte(backendResponse))
		case "/fail":
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "No files received"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ds, err := loader.Fetch(context.Background(), srv.Client(), srv.URL+"/levels")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ds.NodeCount() != 3 {
		t.Fatalf("Expected 3 nodes, got %d", ds.NodeCount())
	}

	_, err = loader.Fetch(context.Background(), srv.Client(), srv.URL+"/fail")
	var be *loader.BackendError
	if !errors.As(err, &be) {
		t.Errorf("Expected BackendError, got %v", err)
	}

	if _, err := loader.Fetch(context.Background(), srv.Client(), srv.URL+"/nope"); err == nil {
		t.Error("Expected error for 404")
	}
}

// =============================================================================
// Fuzz
// =============================================================================

func FuzzParse(f *testing.F) {
	f.Add([]byte(backendResponse))
	f.Add([]byte(`{"levels":[{"nodes":[{"id":1,"x":null}],"links":[{"source":1,"target":1}]}]}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`{"error":"x"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		ds, err := loader.Parse(strings.NewReader(string(data)))
		if err != nil {
			return
		}
		if len(ds.Levels) == 0 {
			t.Fatal("Parse succeeded without levels")
		}
		if err := loader.Validate(ds); err != nil {
			t.Fatalf("Parse returned an invalid dataset: %v", err)
		}
	})
}
