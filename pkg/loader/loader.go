// Package loader decodes photo datasets produced by the processing backend
// and resolves their image references.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/metrics"
	"github.com/vanderheijden86/photocluster/pkg/model"
)

// APIURLEnvVar overrides the configured base address of the backend.
const APIURLEnvVar = "PC_API_URL"

// DefaultBaseURL is the address of a locally running backend.
const DefaultBaseURL = "http://localhost:5000"

// DefaultMaxBytes caps the size of a dataset document (256MB).
const DefaultMaxBytes = 256 << 20

var (
	// ErrEmptyDataset is returned for documents without any level.
	ErrEmptyDataset = errors.New("dataset has no levels")
	// ErrLevelOutOfRange is returned for a level index the dataset lacks.
	ErrLevelOutOfRange = model.ErrLevelOutOfRange
)

// BackendError carries the error message returned by the backend in place
// of a dataset.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return "backend error: " + e.Message
}

// BaseURL returns the base address used to resolve image references:
// PC_API_URL if set, else configured, else DefaultBaseURL.
func BaseURL(configured string) string {
	if env := strings.TrimSpace(os.Getenv(APIURLEnvVar)); env != "" {
		return env
	}
	if configured != "" {
		return configured
	}
	return DefaultBaseURL
}

// Resolve resolves ref against base the way a browser resolves a relative
// link. Absolute references are returned unchanged.
func Resolve(base, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("image reference %q: %w", ref, err)
	}
	if r.IsAbs() || base == "" {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("base url %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}

// ParseOptions configures Parse.
type ParseOptions struct {
	// WarningHandler is called for recoverable problems such as an
	// unparseable timestamp. If nil, warnings go to the debug log.
	WarningHandler func(string)

	// MaxBytes limits the document size. If 0, DefaultMaxBytes is used.
	MaxBytes int64

	// SkipValidation accepts duplicate IDs and dangling links.
	SkipValidation bool
}

// Parse decodes a dataset document. Three shapes are accepted: an object
// with a "levels" array, a bare array of levels, and a single level
// object with "nodes" and "links".
func Parse(r io.Reader) (*model.Dataset, error) {
	return ParseWithOptions(r, ParseOptions{})
}

// ParseWithOptions decodes a dataset document with custom options.
func ParseWithOptions(r io.Reader, opts ParseOptions) (*model.Dataset, error) {
	limit := opts.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("dataset exceeds %d bytes", limit)
	}
	data = bytes.TrimSpace(stripBOM(data))
	if len(data) == 0 {
		return nil, ErrEmptyDataset
	}

	warn := opts.WarningHandler
	if warn == nil {
		warn = func(msg string) { debug.Log("loader: %s", msg) }
	}

	var levels []wireLevel
	if data[0] == '[' {
		if err := json.Unmarshal(data, &levels); err != nil {
			return nil, fmt.Errorf("decoding levels: %w", err)
		}
	} else {
		var doc wireDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decoding dataset: %w", err)
		}
		if doc.Error != "" {
			return nil, &BackendError{Message: doc.Error}
		}
		switch {
		case doc.Levels != nil:
			levels = doc.Levels
		case doc.Nodes != nil:
			levels = []wireLevel{{Nodes: doc.Nodes, Links: doc.Links}}
		}
	}
	if len(levels) == 0 {
		return nil, ErrEmptyDataset
	}

	ds := &model.Dataset{Levels: make([]model.Level, 0, len(levels))}
	for li, wl := range levels {
		level := model.Level{
			Nodes: make([]*model.Node, 0, len(wl.Nodes)),
			Links: make([]model.Link, 0, len(wl.Links)),
		}
		for ni, wn := range wl.Nodes {
			n, err := wn.node()
			if err != nil {
				warn(fmt.Sprintf("level %d node %d: %v", li, ni, err))
			}
			level.Nodes = append(level.Nodes, n)
		}
		for _, wk := range wl.Links {
			level.Links = append(level.Links, model.Link{Source: string(wk.Source), Target: string(wk.Target)})
		}
		ds.Levels = append(ds.Levels, level)
	}

	if !opts.SkipValidation {
		if err := Validate(ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// LoadFile reads a dataset document from path.
func LoadFile(path string) (*model.Dataset, error) {
	return LoadFileWithOptions(path, ParseOptions{})
}

// LoadFileWithOptions reads a dataset document from path with custom options.
func LoadFileWithOptions(path string, opts ParseOptions) (*model.Dataset, error) {
	defer metrics.Timer(metrics.DatasetLoad)()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ParseWithOptions(f, opts)
}

// Fetch downloads a dataset document. A nil client uses
// http.DefaultClient.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (*model.Dataset, error) {
	defer metrics.Timer(metrics.DatasetLoad)()

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching dataset: %w", err)
	}
	defer resp.Body.Close()

	// The backend reports processing errors as {"error": ...} with a 4xx
	// status, so the body is decoded before the status is judged.
	ds, perr := Parse(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var be *BackendError
		if errors.As(perr, &be) {
			return nil, fmt.Errorf("GET %s: status %d: %w", rawURL, resp.StatusCode, be)
		}
		return nil, fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	return ds, perr
}

// Validate checks every level for duplicate node IDs and links to unknown
// nodes.
func Validate(ds *model.Dataset) error {
	if ds == nil || len(ds.Levels) == 0 {
		return ErrEmptyDataset
	}
	var errs []error
	for li, level := range ds.Levels {
		seen := make(map[string]bool, len(level.Nodes))
		for _, n := range level.Nodes {
			if n.ID == "" {
				errs = append(errs, fmt.Errorf("level %d: node without id", li))
				continue
			}
			if seen[n.ID] {
				errs = append(errs, fmt.Errorf("level %d: duplicate node id %q", li, n.ID))
			}
			seen[n.ID] = true
		}
		for _, l := range level.Links {
			if !seen[l.Source] || !seen[l.Target] {
				errs = append(errs, fmt.Errorf("level %d: link %s -> %s references unknown node", li, l.Source, l.Target))
			}
		}
	}
	return errors.Join(errs...)
}

type wireDocument struct {
	Levels []wireLevel `json:"levels"`
	Nodes  []wireNode  `json:"nodes"`
	Links  []wireLink  `json:"links"`
	Error  string      `json:"error"`
}

type wireLevel struct {
	Nodes []wireNode `json:"nodes"`
	Links []wireLink `json:"links"`
}

type wireNode struct {
	ID        flexString `json:"id"`
	ImageURL  string     `json:"imageUrl"`
	Filename  string     `json:"filename"`
	X         *float64   `json:"x"`
	Y         *float64   `json:"y"`
	Z         *float64   `json:"z"`
	Cluster   int        `json:"cluster"`
	FaceCount int        `json:"faceCount"`
	DateTime  *string    `json:"dateTime"`
	Lat       *float64   `json:"lat"`
	Lon       *float64   `json:"lon"`
}

type wireLink struct {
	Source flexString `json:"source"`
	Target flexString `json:"target"`
}

// node converts the wire form. The returned node is usable even when err
// reports a dropped field.
func (w wireNode) node() (*model.Node, error) {
	n := &model.Node{
		ID:        string(w.ID),
		ImageURL:  w.ImageURL,
		Filename:  w.Filename,
		Cluster:   w.Cluster,
		FaceCount: w.FaceCount,
		Lat:       w.Lat,
		Lon:       w.Lon,
	}
	if w.X != nil || w.Y != nil || w.Z != nil {
		n.SetPosition(vec(w.X, w.Y, w.Z))
	}
	if w.DateTime == nil || *w.DateTime == "" {
		return n, nil
	}
	t, err := parseTime(*w.DateTime)
	if err != nil {
		return n, err
	}
	n.DateTime = &t
	return n, nil
}

// timeLayouts covers RFC 3339 and Python's isoformat without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006:01:02 15:04:05",
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised dateTime %q", s)
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(string(n), 64); err != nil {
		return err
	}
	*f = flexString(n)
	return nil
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}

// vec builds a position from optional coordinates; missing ones are 0.
func vec(x, y, z *float64) r3.Vec {
	var v r3.Vec
	if x != nil {
		v.X = *x
	}
	if y != nil {
		v.Y = *y
	}
	if z != nil {
		v.Z = *z
	}
	return v
}
