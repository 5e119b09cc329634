package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/smartsync/internal/formatter"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// History lists recorded refresh runs, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	if err := r.wire(); err != nil {
		return err
	}

	if days := int(cmd.Int("prune-days")); days > 0 {
		n, err := r.runs.Prune(ctx, r.clock.Now().Add(-shared.Days(days)))
		if err != nil {
			return err
		}
		r.logger.Info("pruned refresh runs", "count", n, "older_than_days", days)
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	for flag, key := range map[string]string{"owner": "owner_id", "list": "list_id"} {
		if cmd.String(flag) == "" {
			continue
		}
		id, err := idFlag(cmd, flag)
		if err != nil {
			return err
		}
		criteria[key] = id
	}
	if status := cmd.String("status"); status != "" {
		switch models.RunStatus(status) {
		case models.RunSucceeded, models.RunFailed, models.RunSkipped, models.RunOrphaned:
			criteria["status"] = status
		default:
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidFlag, status)
		}
	}

	runs, err := r.runs.List(ctx, criteria)
	if err != nil {
		return err
	}

	switch {
	case cmd.Bool("json"):
		if runs == nil {
			runs = []*models.RefreshRun{}
		}
		return r.writeJSON(runs, true)
	case cmd.Bool("csv"):
		data, err := formatter.ExportRunsToCSV(runs)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	if len(runs) == 0 {
		return r.writePlain("No refresh runs recorded\n")
	}
	r.writePlainHeader(fmt.Sprintf("Refresh history (%d)", len(runs)))
	for _, run := range runs {
		r.writePlain("#%d %s  %s [%s] %s\n",
			run.Sequence,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.ListName,
			run.Reason,
			ui.StatusLabel(run.Status),
		)
		if run.Message != "" {
			r.writePlain("    %s\n", run.Message)
		}
	}
	return nil
}
