package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/agentjobs/internal/core"
	"github.com/valter-silva-au/agentjobs/internal/observability"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

type pane int

const (
	paneQueue pane = iota
	paneNext
	paneDeliveries
	paneAlerts
	paneCount
)

const (
	refreshInterval = 30 * time.Second
	metricsWindow   = 7 * 24 * time.Hour

	// gridMinWidth is the terminal width below which panes stack vertically.
	gridMinWidth = 100
)

var (
	paneBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	focusedPaneBorder = paneBorder.BorderForeground(lipgloss.Color("62"))
)

type dashboardKeyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Refresh, k.Quit}
}

func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Prev}, {k.Refresh, k.Quit}}
}

var dashboardKeys = dashboardKeyMap{
	Next:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	Prev:    key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous pane")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// snapshot is one load of everything the dashboard shows.
type snapshot struct {
	byStatus map[models.TaskStatus]int
	next     *models.Task
	metrics  *observability.Metrics
	alerts   []observability.Alert
	at       time.Time
	err      error
}

type refreshMsg time.Time

type dashboardModel struct {
	svc    *Services
	focus  pane
	width  int
	height int
	help   help.Model

	data       snapshot
	refreshing bool
}

func newDashboardModel(svc *Services) dashboardModel {
	return dashboardModel{svc: svc, focus: paneQueue, help: help.New(), refreshing: true}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.load, scheduleRefresh())
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, dashboardKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, dashboardKeys.Next):
			m.focus = (m.focus + 1) % paneCount
		case key.Matches(msg, dashboardKeys.Prev):
			m.focus = (m.focus + paneCount - 1) % paneCount
		case key.Matches(msg, dashboardKeys.Refresh):
			m.refreshing = true
			return m, m.load
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
	case refreshMsg:
		return m, tea.Batch(m.load, scheduleRefresh())
	case snapshot:
		m.refreshing = false
		if msg.err != nil {
			// Keep showing the last good data alongside the error.
			m.data.err = msg.err
			return m, nil
		}
		m.data = msg
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := titleStyle.Render(" agentjobs ")
	if !m.data.at.IsZero() {
		header += "  " + helpStyle.Render("updated "+m.data.at.Format("15:04:05"))
	}
	footer := helpStyle.Render(m.help.View(dashboardKeys))

	switch {
	case m.data.err != nil:
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", header, m.data.err, footer)
	case m.data.at.IsZero():
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", header, footer)
	}

	bodies := [paneCount]string{
		paneQueue:      m.queueView(),
		paneNext:       m.nextView(),
		paneDeliveries: m.deliveriesView(),
		paneAlerts:     m.alertsView(),
	}

	var grid string
	if m.width >= gridMinWidth {
		w := m.width/2 - 4
		top := lipgloss.JoinHorizontal(lipgloss.Top, m.frame(paneQueue, bodies[paneQueue], w), m.frame(paneNext, bodies[paneNext], w))
		bottom := lipgloss.JoinHorizontal(lipgloss.Top, m.frame(paneDeliveries, bodies[paneDeliveries], w), m.frame(paneAlerts, bodies[paneAlerts], w))
		grid = lipgloss.JoinVertical(lipgloss.Left, top, bottom)
	} else {
		w := max(m.width-4, 20)
		framed := make([]string, 0, paneCount)
		for p := paneQueue; p < paneCount; p++ {
			framed = append(framed, m.frame(p, bodies[p], w))
		}
		grid = lipgloss.JoinVertical(lipgloss.Left, framed...)
	}
	return header + "\n\n" + grid + "\n\n" + footer
}

func (m dashboardModel) frame(p pane, body string, width int) string {
	style := paneBorder
	if m.focus == p {
		style = focusedPaneBorder
	}
	return style.Width(width).Render(body)
}

func (m dashboardModel) queueView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Queue") + "\n")

	total := 0
	for _, status := range lifecycleOrder {
		n := m.data.byStatus[status]
		if n == 0 {
			continue
		}
		total += n
		fmt.Fprintln(&b, styleForStatus(status).Render(fmt.Sprintf("%-18s %3d", status, n)))
	}
	if total == 0 {
		b.WriteString("No tasks yet.")
		return b.String()
	}
	fmt.Fprintf(&b, "%-18s %3d", "total", total)
	return b.String()
}

func (m dashboardModel) nextView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Next task") + "\n")

	t := m.data.next
	if t == nil {
		b.WriteString("Nothing planned.")
		return b.String()
	}
	fmt.Fprintf(&b, "%s [%s]\n%s\n", t.ID, t.Priority, t.Title)
	if len(t.Deliverables) > 0 {
		done := 0
		for _, d := range t.Deliverables {
			if d.Status == models.DeliverableCompleted {
				done++
			}
		}
		fmt.Fprintf(&b, "deliverables %d/%d\n", done, len(t.Deliverables))
	}
	fmt.Fprintf(&b, "waiting since %s", t.Created.Local().Format("Jan 2 15:04"))
	return b.String()
}

func (m dashboardModel) deliveriesView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Last 7 days") + "\n")

	mt := m.data.metrics
	if mt == nil {
		b.WriteString("No event log.")
		return b.String()
	}
	fmt.Fprintf(&b, "created    %4d\n", mt.TasksCreated)
	fmt.Fprintf(&b, "completed  %4d\n", mt.TasksCompleted)
	fmt.Fprintf(&b, "webhooks   %4d ok, %d failed", mt.WebhooksDelivered, mt.WebhooksFailed)
	if mt.WebhooksDelivered+mt.WebhooksFailed > 0 {
		fmt.Fprintf(&b, " (%.0f%%)", mt.DeliverySuccessRate()*100)
	}
	return b.String()
}

func (m dashboardModel) alertsView() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("Alerts (%d)", len(m.data.alerts))))

	if len(m.data.alerts) == 0 {
		b.WriteString("All clear.")
		return b.String()
	}
	for _, a := range m.data.alerts {
		tag := styleForSeverity(string(a.Severity)).Render(strings.ToUpper(string(a.Severity)))
		fmt.Fprintf(&b, "%s %s\n", tag, a.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// load gathers a snapshot from the services. Missing services leave their
// pane empty.
func (m dashboardModel) load() tea.Msg {
	snap := snapshot{byStatus: make(map[models.TaskStatus]int), at: time.Now()}

	if tm := m.svc.TaskMgr; tm != nil {
		tasks, err := tm.ListTasks(core.TaskFilter{})
		if err != nil {
			return snapshot{err: fmt.Errorf("loading tasks: %w", err)}
		}
		for _, t := range tasks {
			snap.byStatus[t.Status]++
		}
		if snap.next, err = tm.GetNextTask(nil); err != nil {
			return snapshot{err: fmt.Errorf("selecting next task: %w", err)}
		}
	}

	if mc := m.svc.MetricsCalc; mc != nil {
		metrics, err := mc.Calculate(snap.at.Add(-metricsWindow))
		if err != nil {
			return snapshot{err: fmt.Errorf("loading metrics: %w", err)}
		}
		snap.metrics = metrics
	}

	if ae := m.svc.AlertEngine; ae != nil {
		alerts, err := ae.Evaluate()
		if err != nil {
			return snapshot{err: fmt.Errorf("loading alerts: %w", err)}
		}
		sort.SliceStable(alerts, func(i, j int) bool {
			return severityOrder(alerts[i].Severity) < severityOrder(alerts[j].Severity)
		})
		snap.alerts = alerts
	}

	return snap
}

func severityOrder(s observability.AlertSeverity) int {
	switch s {
	case observability.SeverityHigh:
		return 0
	case observability.SeverityMedium:
		return 1
	case observability.SeverityLow:
		return 2
	}
	return 3
}

func newDashboardCmd(svc *Services) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of the queue, deliveries and alerts",
		Long: `Open a terminal dashboard with four panes: tasks per status, the task
get_next_task would hand out, event and delivery counts for the last seven
days, and open alerts.

Tab cycles the focused pane, r reloads, q quits. Data reloads every 30
seconds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if svc.TaskMgr == nil {
				return fmt.Errorf("task manager not initialized")
			}
			_, err := tea.NewProgram(newDashboardModel(svc), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
