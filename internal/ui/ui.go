package ui

import (
	"fmt"
	"strings"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/scheduler"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/tasks"
)

// RenderProgress describes one refresh phase on a single line.
func RenderProgress(u tasks.ProgressUpdate) string {
	var phase string
	switch u.Phase {
	case tasks.Validate:
		phase = "Validating configuration..."
	case tasks.ResolveOwner:
		phase = "Resolving owner..."
	case tasks.FetchCatalog:
		phase = "Fetching catalog..."
	case tasks.FetchSource:
		phase = "Fetching source playlist..."
	case tasks.Compose:
		phase = "Composing list..."
	case tasks.CreatePlaylist:
		phase = "Creating playlist..."
	case tasks.UpdatePlaylist:
		phase = "Updating playlist..."
	case tasks.Done:
		phase = "Done"
	default:
		phase = "Processing..."
	}

	if u.Message == "" {
		return phase
	}
	return fmt.Sprintf("%s %s", phase, Help(u.Message))
}

// RenderResult renders a single list refresh.
func RenderResult(name string, r models.SyncResult) string {
	if !r.Success {
		return Error(fmt.Sprintf("✗ %s: %s", name, r.Message))
	}
	line := OK(fmt.Sprintf("✓ %s", name))
	detail := fmt.Sprintf("%d items, %s", r.ItemCount, shared.FormatDuration(r.TotalRuntime))
	if r.Created {
		detail += ", playlist created"
	}
	return fmt.Sprintf("%s (%s)", line, detail)
}

// StatusLabel colors a run status.
func StatusLabel(s models.RunStatus) string {
	switch s {
	case models.RunSucceeded:
		return OK(string(s))
	case models.RunFailed:
		return Error(string(s))
	case models.RunOrphaned, models.RunSkipped:
		return Warn(string(s))
	default:
		return string(s)
	}
}

// RenderSummary renders an owner pass: the summary line followed by one line per list.
func RenderSummary(b scheduler.BatchSummary) string {
	var sb strings.Builder
	sb.WriteString(Title(fmt.Sprintf("Refresh (%s): %s", b.Reason, b.String())))
	sb.WriteString("\n")
	if b.Swept > 0 {
		sb.WriteString(Help(fmt.Sprintf("swept %d expired ignores", b.Swept)))
		sb.WriteString("\n")
	}
	for _, o := range b.Outcomes {
		switch o.Status {
		case models.RunOrphaned:
			sb.WriteString(Warn(fmt.Sprintf("! %s: playlist removed on the server, list deleted", o.Name)))
		case models.RunSkipped:
			sb.WriteString(Warn(fmt.Sprintf("- %s: %s", o.Name, o.Result.Message)))
		default:
			sb.WriteString(RenderResult(o.Name, o.Result))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
