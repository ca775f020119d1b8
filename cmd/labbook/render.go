package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/hylla/labbook/internal/app"
	"github.com/hylla/labbook/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
)

// statusColors maps derived statuses to ANSI 256 foregrounds.
var statusColors = map[domain.Status]lipgloss.Color{
	domain.StatusPending:    lipgloss.Color("245"),
	domain.StatusInProgress: lipgloss.Color("39"),
	domain.StatusCompleted:  lipgloss.Color("42"),
	domain.StatusDelayed:    lipgloss.Color("203"),
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func statusLabel(status domain.Status) string {
	color, ok := statusColors[status]
	if !ok {
		return string(status)
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(status))
}

// progressBar draws a fixed-width bar for a 0..100 percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf(" %3d%%", percent)
}

// formatCents renders an integer cent amount with thousands separators.
func formatCents(cents int64) string {
	return humanize.CommafWithDigits(float64(cents)/100, 2)
}

func renderProjects(rows []app.ProjectProgress) string {
	t := newTable("Project", "Lead", "Milestones", "Tasks", "Status", "Progress")
	for _, row := range rows {
		t.Row(
			row.Project.Name,
			row.Project.Lead,
			strconv.Itoa(row.Rollup.Milestones),
			fmt.Sprintf("%d/%d", row.Rollup.CompletedTasks, row.Rollup.TotalTasks),
			statusLabel(row.Rollup.Status),
			progressBar(row.Rollup.Progress, 20),
		)
	}
	return t.String()
}

func renderProgress(progress app.ProjectProgress) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(progress.Project.Name))
	b.WriteString("  ")
	b.WriteString(progressBar(progress.Rollup.Progress, 20))
	b.WriteString("\n")

	t := newTable("Milestone", "Activity", "Tasks", "Status", "Progress")
	for _, milestone := range progress.Milestones {
		t.Row(milestone.Name, "", "", statusLabel(milestone.Status), progressBar(milestone.Progress, 10))
		for _, activity := range milestone.Activities {
			done := 0
			for _, task := range activity.Tasks {
				if task.Completed {
					done++
				}
			}
			t.Row("", activity.Name, fmt.Sprintf("%d/%d", done, len(activity.Tasks)), statusLabel(activity.Status), progressBar(activity.Progress, 10))
		}
	}
	b.WriteString(t.String())
	return b.String()
}

func renderDashboard(d app.Dashboard, now time.Time) string {
	var b strings.Builder
	generated := d.GeneratedAt
	if at, err := time.Parse(time.RFC3339, d.GeneratedAt); err == nil {
		generated = humanize.RelTime(at, now, "ago", "from now")
	}
	fmt.Fprintf(&b, "%s  generated %s\n", titleStyle.Render("Lab dashboard"), generated)
	fmt.Fprintf(&b, "patients: %s  active members: %s\n", humanize.Comma(int64(d.Patients)), humanize.Comma(int64(d.ActiveMembers)))

	statuses := make([]string, 0, len(d.SamplesByStatus))
	for status := range d.SamplesByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%s=%s", status, humanize.Comma(int64(d.SamplesByStatus[domain.SampleStatus(status)]))))
	}
	fmt.Fprintf(&b, "samples: %s\n", strings.Join(parts, " "))

	b.WriteString(renderProjects(d.Projects))
	b.WriteString("\n")

	budgets := newTable("Project", "Allocated", "Spent", "Used", "Status")
	names := map[string]string{}
	for _, p := range d.Projects {
		names[p.Project.ID] = p.Project.Name
	}
	for _, budget := range d.Budgets {
		used := "-"
		if budget.AllocatedCents > 0 {
			used = humanize.FtoaWithDigits(float64(budget.SpentCents)*100/float64(budget.AllocatedCents), 1) + "%"
		}
		name := names[budget.ProjectID]
		if name == "" {
			name = budget.ProjectID
		}
		budgets.Row(name, formatCents(budget.AllocatedCents), formatCents(budget.SpentCents), used, string(budget.Status))
	}
	b.WriteString(budgets.String())
	b.WriteString("\n")

	plates := newTable("Plaquette", "Type", "Used", "Occupancy")
	for _, usage := range d.Plaquettes {
		plates.Row(usage.Plaquette.Code, usage.Plaquette.PlateType, fmt.Sprintf("%d/%d", usage.Used, usage.Capacity), string(usage.Occupancy))
	}
	b.WriteString(plates.String())
	return b.String()
}

// projectReportMarkdown builds a markdown report of milestones, activities and budget lines.
func projectReportMarkdown(progress app.ProjectProgress, budget app.BudgetSummary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", progress.Project.Name)
	if progress.Project.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", progress.Project.Description)
	}
	fmt.Fprintf(&b, "**Status:** %s, **progress:** %d%% (%d of %d tasks)\n\n",
		progress.Rollup.Status, progress.Rollup.Progress, progress.Rollup.CompletedTasks, progress.Rollup.TotalTasks)

	b.WriteString("## Milestones\n\n")
	if len(progress.Milestones) == 0 {
		b.WriteString("_No milestones yet._\n\n")
	}
	for _, milestone := range progress.Milestones {
		fmt.Fprintf(&b, "### %s (%s, %d%%)\n\n", milestone.Name, milestone.Status, milestone.Progress)
		if milestone.DueAt != nil {
			fmt.Fprintf(&b, "Due %s (%s).\n\n", milestone.DueAt.Format(time.DateOnly), humanize.RelTime(*milestone.DueAt, now, "ago", "from now"))
		}
		for _, activity := range milestone.Activities {
			fmt.Fprintf(&b, "- **%s**: %s, %d%%\n", activity.Name, activity.Status, activity.Progress)
			for _, task := range activity.Tasks {
				mark := " "
				if task.Completed {
					mark = "x"
				}
				fmt.Fprintf(&b, "  - [%s] %s\n", mark, task.Text)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Budget\n\n")
	if len(budget.Lines) == 0 {
		b.WriteString("_No budget lines._\n")
		return b.String()
	}
	b.WriteString("| Category | Allocated | Spent | Remaining | Status |\n")
	b.WriteString("| --- | ---: | ---: | ---: | --- |\n")
	for _, line := range budget.Lines {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			line.Line.Category, formatCents(line.Line.AllocatedCents), formatCents(line.SpentCents), formatCents(line.RemainingCents), line.Status)
	}
	fmt.Fprintf(&b, "| **Total** | %s | %s | %s | %s |\n",
		formatCents(budget.AllocatedCents), formatCents(budget.SpentCents), formatCents(budget.AllocatedCents-budget.SpentCents), budget.Status)
	return b.String()
}

// renderMarkdown renders markdown for the terminal with a glamour standard style.
func renderMarkdown(markdown, style string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return rendered, nil
}
