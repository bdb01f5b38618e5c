package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/flowmcp/mcpcore/pool"
	"github.com/flowmcp/mcpcore/runtimeconfig"
)

// dashboardTheme is a small lipgloss palette adapted from the donor's
// internal/tui/theme.Theme: this demo only needs a title style, a bordered
// pane, and a muted label, not the donor's full tab/toast/status-pill set.
type dashboardTheme struct {
	title lipgloss.Style
	pane  lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
}

func newDashboardTheme() dashboardTheme {
	primary := lipgloss.AdaptiveColor{Light: "#EA580C", Dark: "#FB923C"}
	border := lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#3B4261"}
	muted := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A9B1D6"}

	return dashboardTheme{
		title: lipgloss.NewStyle().Bold(true).Foreground(primary),
		pane: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		label: lipgloss.NewStyle().Foreground(muted),
		value: lipgloss.NewStyle().Bold(true),
	}
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live TUI dashboard of pool and latency stats for this process",
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

type tickMsg time.Time

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// dashboardModel is an Elm-architecture bubbletea model, following the
// donor's internal/tui/model.go Model/Update/View split, trimmed down to a
// single read-only stats view instead of the donor's multi-tab server
// manager.
type dashboardModel struct {
	theme   dashboardTheme
	pool    *pool.Pool
	spinner spinner.Model
	width   int
}

func newDashboardModel(p *pool.Pool) dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#EA580C", Dark: "#FB923C"})
	return dashboardModel{theme: newDashboardTheme(), pool: p, spinner: s}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(tickEvery(500*time.Millisecond), m.spinner.Tick)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		return m, tickEvery(500 * time.Millisecond)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m dashboardModel) View() string {
	width := m.width
	if width < 40 {
		width = 40
	}

	stats := m.pool.Stats()
	snap := demoLatency.Snapshot()

	var poolBody strings.Builder
	fmt.Fprintf(&poolBody, "%s %d\n", m.theme.label.Render("in use:"), stats.InUse)
	fmt.Fprintf(&poolBody, "%s %d\n", m.theme.label.Render("idle:"), stats.Idle)
	fmt.Fprintf(&poolBody, "%s %d\n", m.theme.label.Render("created:"), stats.ConnectionsCreated)
	fmt.Fprintf(&poolBody, "%s %d\n", m.theme.label.Render("closed:"), stats.ConnectionsClosed)
	fmt.Fprintf(&poolBody, "%s %d\n", m.theme.label.Render("timeouts:"), stats.Timeouts)
	fmt.Fprintf(&poolBody, "%s %d", m.theme.label.Render("peak in use:"), stats.PeakInUse)

	var latBody strings.Builder
	fmt.Fprintf(&latBody, "%s %d\n", m.theme.label.Render("samples:"), snap.Total)
	fmt.Fprintf(&latBody, "%s %s\n", m.theme.label.Render("mean:"), snap.Mean)
	fmt.Fprintf(&latBody, "%s %s\n", m.theme.label.Render("p50:"), snap.Percentile(50))
	fmt.Fprintf(&latBody, "%s %s", m.theme.label.Render("p99:"), snap.Percentile(99))

	poolPane := m.theme.pane.Width(width/2 - 2).Render(m.theme.title.Render("pool") + "\n" + poolBody.String())
	latPane := m.theme.pane.Width(width/2 - 2).Render(m.theme.title.Render("call latency") + "\n" + latBody.String())

	header := m.spinner.View() + " " + m.theme.title.Render("mcpcoredemo dashboard") + "  " + m.theme.label.Render("(q to quit)")
	return header + "\n\n" + lipgloss.JoinHorizontal(lipgloss.Top, poolPane, latPane) + "\n"
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rc, err := runtimeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}
	p, err := pool.New(ctx, poolConfigFrom(rc, 0), inmemFactory)
	if err != nil {
		return fmt.Errorf("pool.New: %w", err)
	}
	defer p.Close()

	m := newDashboardModel(p)
	prog := tea.NewProgram(m)
	_, err = prog.Run()
	return err
}
