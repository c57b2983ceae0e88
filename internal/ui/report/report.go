// Package report prints run summaries and release state for the CLI.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/trellis/internal/ui/output"
	"go.trai.ch/trellis/internal/ui/style"
)

// Printer renders reports to a writer using the CLI color profile.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer

	title   lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	problem lipgloss.Style
}

// New creates a Printer writing to w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(output.ColorProfile())

	return &Printer{
		w:        w,
		renderer: r,
		title:    r.NewStyle().Bold(true).Padding(0, 1).Background(style.Iris).Foreground(style.White),
		failed:   r.NewStyle().Bold(true).Padding(0, 1).Background(style.Red).Foreground(style.White),
		muted:    r.NewStyle().Foreground(style.Slate),
		label:    r.NewStyle().Bold(true),
		problem:  r.NewStyle().Foreground(style.Red),
	}
}

func (p *Printer) icon(s domain.RunStatus) string {
	icon, color := style.StatusIcon(s)
	return p.renderer.NewStyle().Foreground(color).Render(icon)
}

// Runs prints one line per run followed by its problems, then the aggregate.
func (p *Printer) Runs(runs []*domain.Run, aggregate domain.RunStatus) {
	header := p.title
	if aggregate != domain.RunSucceeded {
		header = p.failed
	}
	p.println(header.Render("Summary: " + string(aggregate)))

	width := 0
	for _, r := range runs {
		width = max(width, lipgloss.Width(r.JobName))
	}

	for _, r := range runs {
		name := r.JobName + strings.Repeat(" ", width-lipgloss.Width(r.JobName))
		details := []string{string(r.Status)}
		if r.BuildNumber != "" {
			details = append(details, "#"+r.BuildNumber)
		}
		if d := r.Duration(); d > 0 {
			details = append(details, d.Round(time.Millisecond).String())
		}
		if r.Agent != "" {
			details = append(details, "on "+r.Agent)
		}
		p.println(fmt.Sprintf("%s %s  %s", p.icon(r.Status), name, p.muted.Render(strings.Join(details, " · "))))
		for _, prob := range r.Problems {
			p.println("    " + p.problem.Render(style.Arrow+" "+prob.String()))
		}
	}
}

// JobStatus is one row of the status table. Run is nil for jobs that never ran.
type JobStatus struct {
	Job *domain.Job
	Run *domain.Run
}

// Jobs prints the latest run of every job.
func (p *Printer) Jobs(rows []JobStatus) {
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row.Job.ID.String()))
	}

	for _, row := range rows {
		id := row.Job.ID.String()
		id += strings.Repeat(" ", width-lipgloss.Width(id))
		if row.Run == nil {
			p.println(fmt.Sprintf("%s %s  %s", p.icon(domain.RunQueued), id, p.muted.Render("never run")))
			continue
		}
		detail := string(row.Run.Status)
		if row.Run.BuildNumber != "" {
			detail += " · #" + row.Run.BuildNumber
		}
		if !row.Run.FinishedAt.IsZero() {
			detail += " · " + row.Run.FinishedAt.Local().Format(time.DateTime)
		}
		p.println(fmt.Sprintf("%s %s  %s", p.icon(row.Run.Status), id, p.muted.Render(detail)))
	}
}

// Release prints the release record.
func (p *Printer) Release(record *domain.ReleaseRecord) {
	state := p.renderer.NewStyle().Bold(true).Foreground(style.ReleaseColor(record.State)).Render(string(record.State))
	p.println(p.label.Render("Release") + "  " + state)

	if record.Attempt > 0 {
		p.field("attempt", fmt.Sprint(record.Attempt))
	}
	if record.Version != "" {
		p.field(record.VersionParam, record.Version)
	}
	if record.ConfigureRunID != "" {
		p.field("configure run", record.ConfigureRunID)
	}
	for _, job := range slices.Sorted(maps.Keys(record.DeployRunIDs)) {
		p.field("deploy "+job, record.DeployRunIDs[job])
	}
	if record.PublishRunID != "" {
		p.field("publish run", record.PublishRunID)
	}
	if !record.UpdatedAt.IsZero() {
		p.field("updated", record.UpdatedAt.Local().Format(time.DateTime))
	}
	for _, prob := range record.Problems {
		p.println("  " + p.problem.Render(style.Arrow+" "+prob.String()))
	}
}

func (p *Printer) field(name, value string) {
	p.println("  " + p.muted.Render(name+":") + " " + value)
}

func (p *Printer) println(s string) {
	_, _ = fmt.Fprintln(p.w, s)
}
