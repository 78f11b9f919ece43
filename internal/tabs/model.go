// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package tabs is an interactive tab widget. Each tab is a cache key; selecting
// it asks the engine for the value and shows one of three states while that
// happens: loading, error or data.
package tabs

import (
	"context"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/staranto/tabfetch/internal/cache"
)

// DefaultKeys are the tabs shown when none are given.
var DefaultKeys = []string{"1", "2", "3", "4"}

// Source is what the widget needs from the cache engine.
type Source interface {
	Get(ctx context.Context, key string, opts ...cache.RetryOptions) (string, error)
}

type viewState int

const (
	stateLoading viewState = iota
	stateError
	stateData
)

func (s viewState) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateError:
		return "error"
	case stateData:
		return "data"
	default:
		return "unknown"
	}
}

// Messages for async operations
type selectMsg struct {
	index int
}

type fetchedMsg struct {
	seq   int
	key   string
	value string
	err   error
}

// Model is the bubbletea model for the widget.
type Model struct {
	ctx    context.Context
	source Source
	keys   []string
	retry  []cache.RetryOptions

	active int
	state  viewState
	value  string
	err    string

	// seq identifies the current fetch. Results carrying an older seq belong
	// to a tab that is no longer selected and are dropped.
	seq    int
	cancel context.CancelFunc

	spinner spinner.Model
	styles  styles
	width   int
}

type styles struct {
	active   lipgloss.Style
	inactive lipgloss.Style
	title    lipgloss.Style
	errLabel lipgloss.Style
	errText  lipgloss.Style
	help     lipgloss.Style
	body     lipgloss.Style
}

func defaultStyles() styles {
	tab := lipgloss.NewStyle().Padding(0, 3).Foreground(lipgloss.Color("#ffffff"))
	return styles{
		active:   tab.Background(lipgloss.Color("#007bff")),
		inactive: tab.Background(lipgloss.Color("#37424e")),
		title:    lipgloss.NewStyle().Bold(true).MarginBottom(1),
		errLabel: lipgloss.NewStyle().Bold(true),
		errText:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")),
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280")),
		body:     lipgloss.NewStyle().Padding(1, 2),
	}
}

// New returns a Model showing keys, with the first tab selected. The optional
// RetryOptions are passed through to every Get.
func New(ctx context.Context, source Source, keys []string, retry ...cache.RetryOptions) Model {
	if len(keys) == 0 {
		keys = DefaultKeys
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:     ctx,
		source:  source,
		keys:    keys,
		retry:   retry,
		state:   stateLoading,
		spinner: sp,
		styles:  defaultStyles(),
	}
}

// Init starts the spinner and loads the first tab.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return selectMsg{index: m.active}
	})
}

// Update handles key presses, fetch results and spinner ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case selectMsg:
		return m.selectTab(msg.index)

	case fetchedMsg:
		if msg.seq != m.seq {
			log.WithField("key", msg.key).Debug("dropping result for deselected tab")
			return m, nil
		}
		if msg.err != nil {
			m.state = stateError
			m.err = msg.err.Error()
			return m, nil
		}
		m.state = stateData
		m.value = msg.value
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case "q", "esc", "ctrl+c":
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	case "left", "h", "shift+tab":
		return m.selectTab((m.active - 1 + len(m.keys)) % len(m.keys))
	case "right", "l", "tab":
		return m.selectTab((m.active + 1) % len(m.keys))
	case "r":
		return m.selectTab(m.active)
	}

	if n, err := strconv.Atoi(key); err == nil && n >= 1 && n <= len(m.keys) {
		return m.selectTab(n - 1)
	}

	return m, nil
}

// selectTab makes index the active tab, clears any previous error and starts
// a fetch. The fetch for the previously active tab, if still running, is
// cancelled.
func (m Model) selectTab(index int) (Model, tea.Cmd) {
	if index < 0 || index >= len(m.keys) {
		return m, nil
	}

	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)

	m.cancel = cancel
	m.active = index
	m.seq++
	m.err = ""
	m.value = ""
	m.state = stateLoading

	return m, load(ctx, m.source, m.seq, m.keys[index], m.retry)
}

func load(ctx context.Context, source Source, seq int, key string, retry []cache.RetryOptions) tea.Cmd {
	return func() tea.Msg {
		value, err := source.Get(ctx, key, retry...)
		return fetchedMsg{seq: seq, key: key, value: value, err: err}
	}
}

// View renders the tab bar, the active tab's body and a help line.
func (m Model) View() string {
	var b strings.Builder

	tabs := make([]string, 0, len(m.keys))
	for i, key := range m.keys {
		style := m.styles.inactive
		if i == m.active {
			style = m.styles.active
		}
		tabs = append(tabs, style.Render("Tab "+key))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n")

	body := m.styles.body
	if m.width > 0 {
		body = body.Width(m.width)
	}

	switch m.state {
	case stateLoading:
		b.WriteString(body.Render(m.spinner.View() + " Loading..."))
	case stateError:
		b.WriteString(body.Render(m.styles.errLabel.Render("Error:") + " " + m.styles.errText.Render(m.err)))
	case stateData:
		b.WriteString(body.Render(m.styles.title.Render("Title "+m.keys[m.active]) + "\n" + m.value))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render("←/→ switch • 1-9 jump • r reload • q quit"))
	b.WriteString("\n")

	return b.String()
}
