package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/desertthunder/smartsync/internal/formatter"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/tasks"
	"github.com/desertthunder/smartsync/internal/ui"
	"github.com/urfave/cli/v3"
)

func ownerArg(cmd *cli.Command) (string, error) {
	id, err := shared.NormalizeID(cmd.String("owner"))
	if err != nil {
		return "", fmt.Errorf("%w: --owner must be a UUID", shared.ErrInvalidFlag)
	}
	return id, nil
}

func idFlag(cmd *cli.Command, name string) (string, error) {
	id, err := shared.NormalizeID(cmd.String(name))
	if err != nil {
		return "", fmt.Errorf("%w: --%s must be a UUID", shared.ErrInvalidFlag, name)
	}
	return id, nil
}

// ListsList prints an owner's smart lists.
func (r *Runner) ListsList(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	lists, err := r.lists.List(ctx, owner)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		if lists == nil {
			lists = []*models.SmartListConfig{}
		}
		return r.writeJSON(lists, true)
	}

	if len(lists) == 0 {
		return r.writePlain("No smart lists for %s\n", owner)
	}

	r.writePlainHeader(fmt.Sprintf("Smart lists (%d)", len(lists)))
	for _, cfg := range lists {
		state := ui.OK("enabled")
		if !cfg.Enabled {
			state = ui.Warn("disabled")
		}
		last := "never"
		if cfg.LastRefreshed != nil {
			last = cfg.LastRefreshed.Local().Format("2006-01-02 15:04")
		}
		r.writePlain("%s  %s [%s]\n", cfg.ID, cfg.Name, state)
		r.writePlain("    %d items, %.0f min, refreshed %s\n", cfg.ItemCount, cfg.TotalRuntimeMinutes, last)
	}
	return nil
}

// ListsShow prints one smart list as JSON.
func (r *Runner) ListsShow(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	id, err := idFlag(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	cfg, err := r.lists.Get(ctx, owner, id)
	if err != nil {
		return err
	}
	return r.writeJSON(cfg, true)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// ListsSave creates or updates a smart list from JSON. A document carrying the ID of an existing
// list updates it; anything else creates a new list.
func (r *Runner) ListsSave(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}

	data, err := readInput(cmd.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read list file: %w", err)
	}
	var cfg models.SmartListConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: list file is not valid JSON: %v", shared.ErrInvalidInput, err)
	}

	if err := r.wire(); err != nil {
		return err
	}

	var existing *models.SmartListConfig
	if cfg.ID != "" {
		existing, err = r.lists.Get(ctx, owner, cfg.ID)
		if err != nil && !errors.Is(err, shared.ErrListNotFound) {
			return err
		}
	}
	cfg.OwnerID = owner
	cfg.KeepSyncState(existing)

	if err := r.lists.Save(ctx, &cfg); err != nil {
		return err
	}

	verb := "Created"
	if existing != nil {
		verb = "Updated"
	}
	r.logger.Info("smart list saved", "owner", owner, "list", cfg.ID, "created", existing == nil)
	return r.writePlain("✓ %s %s (%s)\n", verb, cfg.Name, cfg.ID)
}

// ListsDelete deletes a smart list along with its ignores.
func (r *Runner) ListsDelete(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	id, err := idFlag(cmd, "id")
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	if err := r.lists.Delete(ctx, owner, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

// ListsRefresh refreshes one list with progress output, or runs a full pass over the owner.
//
// It holds the daemon lock while running so a refresh from the CLI never overlaps one the daemon
// is executing; with a daemon up, refresh through its API instead.
func (r *Runner) ListsRefresh(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	release, err := r.acquireLock()
	if err != nil {
		return fmt.Errorf("%w; refresh through the daemon API (POST /api/owners/%s/refresh)", err, owner)
	}
	defer release()

	if err := r.wire(); err != nil {
		return err
	}

	if cmd.String("id") == "" {
		summary := r.scheduler.RefreshOwner(ctx, owner, models.ReasonManual)
		if summary.Busy {
			return shared.ErrRefreshInProgress
		}
		if cmd.Bool("json") {
			return r.writeJSON(summary, true)
		}
		return r.writePlain("%s", ui.RenderSummary(summary))
	}

	id, err := idFlag(cmd, "id")
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if !cmd.Bool("json") {
				r.writePlain("%s\n", ui.RenderProgress(update))
			}
		}
	}()

	out, err := r.scheduler.RefreshListProgress(ctx, owner, id, models.ReasonManual, progressCh)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(out.Result, true)
	}
	r.writePlain("\n%s\n", ui.RenderResult(out.Name, out.Result))
	if !out.Result.Success {
		return fmt.Errorf("%w: %s", shared.ErrExternalSync, out.Result.Message)
	}
	return nil
}

func (r *Runner) preview(ctx context.Context, cmd *cli.Command) (*formatter.ListExport, error) {
	owner, err := ownerArg(cmd)
	if err != nil {
		return nil, err
	}
	id, err := idFlag(cmd, "id")
	if err != nil {
		return nil, err
	}
	if err := r.wire(); err != nil {
		return nil, err
	}

	cfg, err := r.lists.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	sel, err := r.engine.Preview(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return formatter.NewListExport(cfg, sel), nil
}

// ListsPreview prints the entries a list would contain right now.
func (r *Runner) ListsPreview(ctx context.Context, cmd *cli.Command) error {
	export, err := r.preview(ctx, cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(export, true)
	}

	text, err := formatter.ExportToText(export)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(text); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if export.MissingRuntime > 0 {
		r.writePlain("\n%s\n", ui.Help(fmt.Sprintf("%d entries have no runtime and count as 0:00", export.MissingRuntime)))
	}
	return nil
}

// ListsExport writes a computed list to disk.
func (r *Runner) ListsExport(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	switch format {
	case "csv", "markdown", "md", "text", "txt", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}

	export, err := r.preview(ctx, cmd)
	if err != nil {
		return err
	}
	output := cmd.String("output")

	switch format {
	case "csv":
		result, err := formatter.WriteCSVExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Entries: %s\n✓ Metadata: %s\n", result.EntriesFile, result.MetadataFile)
	case "markdown", "md":
		result, err := formatter.WriteMarkdownExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported to %s/\n", result.Directory)
	case "text", "txt":
		path, err := formatter.WriteTextExport(export, output)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported to %s\n", path)
	case "json":
		if output == "" {
			output = export.List.ID + ".json"
		}
		data, err := shared.MarshalJSON(export, true)
		if err != nil {
			return fmt.Errorf("failed to marshal export: %w", err)
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		r.writePlain("✓ Exported to %s\n", output)
	}
	return nil
}
