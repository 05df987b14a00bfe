// Package highlight tracks which node of the graph is emphasized.
//
// Only one node is highlighted at a time. Clicking a node highlights it at
// level 1; clicking the highlighted node again cycles its level through
// 1..MaxLevel. Transitions do not touch textures or the camera directly:
// Click returns the effects the caller should execute.
package highlight

import (
	"fmt"
	"sync"
)

// MaxLevel is the highest emphasis level.
const MaxLevel = 4

// DefaultPriority is the load priority of a highlighted node's texture.
// It sits above every ambient preload priority.
const DefaultPriority = 1000

// State is a snapshot of the machine. The zero value is Idle.
type State struct {
	NodeID string
	Level  int
}

// Active reports whether a node is highlighted.
func (s State) Active() bool {
	return s.NodeID != "" && s.Level > 0
}

// LevelOf returns the emphasis level of nodeID, 0 when not highlighted.
func (s State) LevelOf(nodeID string) int {
	if !s.Active() || s.NodeID != nodeID {
		return 0
	}
	return s.Level
}

func (s State) String() string {
	if !s.Active() {
		return "idle"
	}
	return fmt.Sprintf("highlighted(%s, %d)", s.NodeID, s.Level)
}

// Effect is a side effect requested by a transition.
type Effect interface {
	isEffect()
}

// LoadHighRes asks for the node's full-size texture at Priority.
type LoadHighRes struct {
	NodeID   string
	Priority int
}

// FrameNode asks the camera to fly to the node.
type FrameNode struct {
	NodeID string
}

func (LoadHighRes) isEffect() {}
func (FrameNode) isEffect()   {}

// Machine is the highlight state machine. It is safe for concurrent use.
type Machine struct {
	priority int

	mu    sync.Mutex
	state State
}

// New returns an idle machine. priority is the load priority emitted for
// newly highlighted nodes; non-positive values use DefaultPriority.
func New(priority int) *Machine {
	if priority <= 0 {
		priority = DefaultPriority
	}
	return &Machine{priority: priority}
}

// Click applies a click on nodeID and returns the resulting effects.
//
// A click on a node other than the highlighted one (or from idle)
// highlights it at level 1 and requests its full-size texture and camera
// framing. A click on the highlighted node advances its level and
// requests nothing else.
func (m *Machine) Click(nodeID string) []Effect {
	if nodeID == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Active() && m.state.NodeID == nodeID {
		m.state.Level = m.state.Level%MaxLevel + 1
		return nil
	}

	m.state = State{NodeID: nodeID, Level: 1}
	return []Effect{
		LoadHighRes{NodeID: nodeID, Priority: m.priority},
		FrameNode{NodeID: nodeID},
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Level returns the emphasis level of nodeID.
func (m *Machine) Level(nodeID string) int {
	return m.State().LevelOf(nodeID)
}

// Priority returns the load priority used for highlighted nodes.
func (m *Machine) Priority() int {
	return m.priority
}

// Reset returns the machine to idle.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.state = State{}
	m.mu.Unlock()
}
