package ui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/photocluster/pkg/export"
)

// RerenderMsg asks the model to rebuild its rows from fresh descriptors.
type RerenderMsg struct{}

// Host is the renderer collaborator while the terminal UI runs. Camera
// calls go to the headless renderer; re-render requests become a single
// pending RerenderMsg in the program.
type Host struct {
	*export.Renderer

	pending atomic.Bool
	mu      sync.Mutex
	send    func(tea.Msg)
}

// NewHost wraps r.
func NewHost(r *export.Renderer) *Host {
	return &Host{Renderer: r}
}

// Attach routes re-render requests to p.
func (h *Host) Attach(p *tea.Program) {
	h.SetSend(p.Send)
}

// SetSend routes re-render requests to fn.
func (h *Host) SetSend(fn func(tea.Msg)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.send = fn
}

// RequestRerender implements stream.Renderer.
func (h *Host) RequestRerender() {
	h.Renderer.RequestRerender()
	if !h.pending.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	send := h.send
	h.mu.Unlock()
	if send == nil {
		h.pending.Store(false)
		return
	}
	// Send blocks until the program reads it, and the program may be
	// waiting on the loop this is called from.
	go send(RerenderMsg{})
}

// rendered clears the pending flag once the model has handled a RerenderMsg.
func (h *Host) rendered() {
	h.pending.Store(false)
}
