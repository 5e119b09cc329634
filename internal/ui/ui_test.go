package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/scheduler"
	"github.com/desertthunder/smartsync/internal/tasks"
)

func TestRenderProgress(t *testing.T) {
	tests := []struct {
		name   string
		update tasks.ProgressUpdate
		want   string
	}{
		{"validate", tasks.ProgressUpdate{Phase: tasks.Validate}, "Validating configuration..."},
		{"catalog with message", tasks.ProgressUpdate{Phase: tasks.FetchCatalog, Message: "120 entries"}, "Fetching catalog... 120 entries"},
		{"create", tasks.ProgressUpdate{Phase: tasks.CreatePlaylist}, "Creating playlist..."},
		{"done", tasks.ProgressUpdate{Phase: tasks.Done}, "Done"},
		{"unknown", tasks.ProgressUpdate{Phase: tasks.Phase(99)}, "Processing..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderProgress(tt.update); !strings.Contains(got, tt.want) {
				t.Errorf("RenderProgress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		got := RenderResult("Jazz", models.SyncResult{Success: true, ItemCount: 3, TotalRuntime: 14 * time.Minute, Created: true})
		for _, want := range []string{"✓ Jazz", "3 items, 14:00", "playlist created"} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in %q", want, got)
			}
		}
	})

	t.Run("failure", func(t *testing.T) {
		got := RenderResult("Jazz", models.SyncResult{Message: "owner not found"})
		if !strings.Contains(got, "✗ Jazz: owner not found") {
			t.Errorf("unexpected failure line %q", got)
		}
	})
}

func TestRenderSummary(t *testing.T) {
	summary := scheduler.BatchSummary{
		Reason:    models.ReasonManual,
		Swept:     2,
		Succeeded: 1,
		Failed:    1,
		Orphaned:  1,
		Outcomes: []scheduler.Outcome{
			{Name: "Jazz", Status: models.RunSucceeded, Result: models.SyncResult{Success: true, ItemCount: 2}},
			{Name: "Rock", Status: models.RunFailed, Result: models.SyncResult{Message: "source playlist not found"}},
			{Name: "Gone", Status: models.RunOrphaned},
		},
	}

	got := RenderSummary(summary)
	for _, want := range []string{
		"Refresh (manual): 1 succeeded, 1 failed, 1 orphaned",
		"swept 2 expired ignores",
		"✓ Jazz",
		"✗ Rock: source playlist not found",
		"! Gone",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	for _, s := range []models.RunStatus{models.RunSucceeded, models.RunFailed, models.RunSkipped, models.RunOrphaned} {
		if got := StatusLabel(s); !strings.Contains(got, string(s)) {
			t.Errorf("StatusLabel(%s) = %q", s, got)
		}
	}
}
