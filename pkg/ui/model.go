// Package ui is the interactive terminal driver. It lists the nodes of the
// visible level with their texture tier and highlight level, forwards
// clicks, level changes, fullscreen and resize to the streaming core, and
// hosts the headless renderer so frames can be saved on demand.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/photocluster/pkg/debug"
	"github.com/vanderheijden86/photocluster/pkg/model"
	"github.com/vanderheijden86/photocluster/pkg/stream"
	"github.com/vanderheijden86/photocluster/pkg/texture"
	"github.com/vanderheijden86/photocluster/pkg/visual"
)

// refreshInterval redraws queue progress that arrives without a re-render.
const refreshInterval = 250 * time.Millisecond

// DefaultFramePath is where the save key writes when no path is configured.
const DefaultFramePath = "pcv-frame.png"

// Column widths in terminal cells.
const (
	colEmphasis = 1
	colTier     = 4
	colID       = 10
)

type tickMsg time.Time

// Options configures the model.
type Options struct {
	// Exec runs fn on the streaming loop and waits for it. Nil runs fn
	// directly, which is only safe with a single-threaded scheduler.
	Exec func(fn func())
	// FramePath is the output of the save key.
	FramePath string
	Palette   visual.Palette
	// Copy writes text to the clipboard.
	Copy func(text string) error
}

type row struct {
	node     *model.Node
	emphasis int
	tier     texture.Tier
}

// Model is the bubbletea model of pcv.
type Model struct {
	st   *stream.Streamer
	host *Host
	opts Options

	keys     keyMap
	help     help.Model
	showHelp bool

	rows    []row
	stats   stream.Stats
	cursor  int
	width   int
	height  int
	message string
}

// NewModel returns a model driving st and drawing through host.
func NewModel(st *stream.Streamer, host *Host, opts Options) Model {
	if opts.Exec == nil {
		opts.Exec = func(fn func()) { fn() }
	}
	if opts.FramePath == "" {
		opts.FramePath = DefaultFramePath
	}
	if opts.Palette == (visual.Palette{}) {
		opts.Palette = visual.DefaultPalette()
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	m := Model{
		st:    st,
		host:  host,
		opts:  opts,
		keys:  defaultKeyMap(),
		help:  help.New(),
		width: 80,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// refresh rebuilds every row from a fresh descriptor, which is what
// re-rendering means for this driver: missing textures get requested.
func (m *Model) refresh() {
	var rows []row
	var stats stream.Stats
	m.opts.Exec(func() {
		for _, n := range m.st.Nodes() {
			d := m.st.BuildVisual(n)
			tier := texture.TierPlaceholder
			if d.Texture != nil {
				tier = d.Texture.Tier
			}
			rows = append(rows, row{node: n, emphasis: d.Level, tier: tier})
		}
		stats = m.st.Stats()
	})
	m.rows = rows
	m.stats = stats
	if m.cursor >= len(m.rows) {
		m.cursor = max(0, len(m.rows)-1)
	}
}

func (m *Model) selected() *model.Node {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil
	}
	return m.rows[m.cursor].node
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.opts.Exec(m.st.OnResize)
		return m, nil

	case RerenderMsg:
		if m.host != nil {
			m.host.rendered()
		}
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Click):
		if n := m.selected(); n != nil {
			m.opts.Exec(func() { m.st.OnNodeClick(n) })
			m.message = ""
			m.refresh()
		}

	case key.Matches(msg, m.keys.Fullscreen):
		var on bool
		m.opts.Exec(func() {
			on = !m.st.Fullscreen()
			m.st.SetFullscreen(on)
		})
		m.message = fmt.Sprintf("fullscreen %s", onOff(on))
		m.refresh()

	case key.Matches(msg, m.keys.PrevLevel):
		m.changeLevel(-1)

	case key.Matches(msg, m.keys.NextLevel):
		m.changeLevel(1)

	case key.Matches(msg, m.keys.CopyURL):
		n := m.selected()
		if n == nil {
			break
		}
		var url string
		m.opts.Exec(func() { url = m.st.URL(n) })
		if url == "" {
			m.message = fmt.Sprintf("%s has no image", n.ID)
			break
		}
		if err := m.opts.Copy(url); err != nil {
			m.message = fmt.Sprintf("clipboard: %v", err)
			break
		}
		m.message = fmt.Sprintf("copied %s", url)

	case key.Matches(msg, m.keys.SaveFrame):
		if m.host == nil {
			break
		}
		var err error
		m.opts.Exec(func() { err = m.host.SaveFrame(m.opts.FramePath, "") })
		if err != nil {
			m.message = fmt.Sprintf("save failed: %v", err)
			break
		}
		m.message = fmt.Sprintf("saved %s", m.opts.FramePath)

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	}
	return m, nil
}

func (m *Model) changeLevel(delta int) {
	var err error
	var level int
	m.opts.Exec(func() {
		level = m.st.CurrentLevel() + delta
		err = m.st.SetLevel(level)
	})
	if err != nil {
		m.message = fmt.Sprintf("no level %d", level)
		debug.Log("ui: level %d: %v", level, err)
		return
	}
	m.cursor = 0
	m.message = ""
	m.refresh()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("pcv  level %d/%d  %d nodes", m.stats.Level+1, m.stats.Levels, m.stats.Nodes)
	b.WriteString(titleStyle.Render(truncate(title, m.width)))
	b.WriteString("\n")

	labelWidth := max(8, m.width-colEmphasis-colTier-colID-5)
	header := fmt.Sprintf("  %s %s %s %s",
		fit("", colEmphasis), fit("TIER", colTier), fit("ID", colID), fit("PHOTO", labelWidth))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	first, last := m.window()
	for i := first; i < last; i++ {
		r := m.rows[i]
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		line := marker +
			RenderEmphasis(m.opts.Palette, r.emphasis) + " " +
			RenderTierBadge(r.tier) + " " +
			fit(r.node.ID, colID) + " " +
			fit(r.node.Label(), labelWidth)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString(statusBarStyle.Render(truncate(m.statusLine(), max(1, m.width-2))))
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(messageStyle.Render(truncate(m.message, m.width)))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return lipgloss.NewStyle().MaxWidth(max(1, m.width)).Render(b.String())
}

// window returns the row range that fits the terminal around the cursor.
func (m Model) window() (int, int) {
	visible := len(m.rows)
	if m.height > 0 {
		visible = max(1, m.height-6)
	}
	if visible >= len(m.rows) {
		return 0, len(m.rows)
	}
	first := max(0, m.cursor-visible/2)
	if first+visible > len(m.rows) {
		first = len(m.rows) - visible
	}
	return first, first + visible
}

func (m Model) statusLine() string {
	c := m.stats.Cache
	parts := []string{
		fmt.Sprintf("low %d", c.LowEntries),
		fmt.Sprintf("high %d", c.HighEntries),
		fmt.Sprintf("queue %d", c.QueueLen),
		fmt.Sprintf("failed %d", c.Failures),
		m.stats.Highlight.String(),
	}
	if m.stats.Fullscreen {
		parts = append(parts, "fullscreen")
	}
	return strings.Join(parts, " · ")
}
