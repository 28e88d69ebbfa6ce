package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/agentjobs/pkg/models"
)

// Style definitions shared by list output and the dashboard.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	statusPlanned   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusActive    = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusWaiting   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	statusBlocked   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusReview    = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusCompleted = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusArchived  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// lifecycleOrder is the display order of statuses, active work first.
var lifecycleOrder = []models.TaskStatus{
	models.StatusInProgress,
	models.StatusWaitingForHuman,
	models.StatusBlocked,
	models.StatusUnderReview,
	models.StatusPlanned,
	models.StatusCompleted,
	models.StatusArchived,
}

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusPlanned:
		return statusPlanned
	case models.StatusInProgress:
		return statusActive
	case models.StatusWaitingForHuman:
		return statusWaiting
	case models.StatusBlocked:
		return statusBlocked
	case models.StatusUnderReview:
		return statusReview
	case models.StatusCompleted:
		return statusCompleted
	case models.StatusArchived:
		return statusArchived
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// printTaskTable writes tasks grouped by status in lifecycle order.
func printTaskTable(w io.Writer, tasks []*models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}

	grouped := make(map[models.TaskStatus][]*models.Task)
	for _, t := range tasks {
		grouped[t.Status] = append(grouped[t.Status], t)
	}

	first := true
	for _, status := range lifecycleOrder {
		group := grouped[status]
		if len(group) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false

		fmt.Fprintln(w, styleForStatus(status).Bold(true).Render(fmt.Sprintf("%s (%d)", status, len(group))))
		fmt.Fprintf(w, "  %-12s %-9s %-12s %s\n", "ID", "PRIORITY", "CATEGORY", "TITLE")
		for _, t := range group {
			fmt.Fprintf(w, "  %-12s %-9s %-12s %s\n", t.ID, t.Priority, t.Category, t.Title)
		}
	}
}
