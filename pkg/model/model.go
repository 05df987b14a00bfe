// Package model defines the photo graph shared by the loader, the
// streaming core and the renderers.
//
// A Dataset is an ordered sequence of levels, each a node-link graph whose
// nodes are photographs. Datasets are replaced wholesale; nothing in this
// package supports partial updates.
package model

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrLevelOutOfRange is returned when a level index does not exist.
var ErrLevelOutOfRange = errors.New("level out of range")

// Node is a single photograph in the graph.
//
// Position fields are owned by the layout collaborator, which may keep
// mutating them while the graph is displayed. Everything else is read-only
// once the dataset has been received.
type Node struct {
	ID        string     `json:"id"`
	ImageURL  string     `json:"imageUrl,omitempty"`
	Filename  string     `json:"filename,omitempty"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Z         float64    `json:"z"`
	Cluster   int        `json:"cluster"`
	FaceCount int        `json:"faceCount"`
	DateTime  *time.Time `json:"dateTime,omitempty"`
	Lat       *float64   `json:"lat,omitempty"`
	Lon       *float64   `json:"lon,omitempty"`

	// Placed reports whether the node has a position, either from the
	// dataset or from the layout collaborator.
	Placed bool `json:"-"`
}

// Position returns the node position as a vector.
func (n *Node) Position() r3.Vec {
	return r3.Vec{X: n.X, Y: n.Y, Z: n.Z}
}

// SetPosition moves the node and marks it as placed.
func (n *Node) SetPosition(p r3.Vec) {
	n.X, n.Y, n.Z = p.X, p.Y, p.Z
	n.Placed = true
}

// ImageRef returns the reference used to fetch the node's photograph.
// The processing backend sometimes only sends a filename.
func (n *Node) ImageRef() string {
	if n.ImageURL != "" {
		return n.ImageURL
	}
	return n.Filename
}

// Label returns a short human-readable name for the node.
func (n *Node) Label() string {
	if n.Filename != "" {
		return n.Filename
	}
	if n.ImageURL != "" {
		return n.ImageURL
	}
	return n.ID
}

// Link connects two nodes of the same level.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Level is one node-link graph of a dataset.
type Level struct {
	Nodes []*Node `json:"nodes"`
	Links []Link  `json:"links"`
}

// Node returns the node with the given ID, or nil.
func (l *Level) Node(id string) *Node {
	for _, n := range l.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Index maps node IDs to their position in Nodes.
func (l *Level) Index() map[string]int {
	idx := make(map[string]int, len(l.Nodes))
	for i, n := range l.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// Dataset is the ordered sequence of levels produced by the processing
// backend.
type Dataset struct {
	Levels []Level `json:"levels"`
}

// Level returns the level at index i.
func (d *Dataset) Level(i int) (*Level, error) {
	if d == nil || i < 0 || i >= len(d.Levels) {
		return nil, fmt.Errorf("%w: %d", ErrLevelOutOfRange, i)
	}
	return &d.Levels[i], nil
}

// NodeCount returns the number of nodes across all levels.
func (d *Dataset) NodeCount() int {
	if d == nil {
		return 0
	}
	total := 0
	for _, l := range d.Levels {
		total += len(l.Nodes)
	}
	return total
}
