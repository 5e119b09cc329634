package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/smartsync/internal/ignores"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// IgnoresList prints the owner's ignores, optionally restricted to one list.
func (r *Runner) IgnoresList(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	listID := ""
	if cmd.String("list") != "" {
		if listID, err = idFlag(cmd, "list"); err != nil {
			return err
		}
	}
	if err := r.wire(); err != nil {
		return err
	}

	entries, err := r.ledger.List(ctx, owner, listID)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		if entries == nil {
			entries = []models.ExclusionEntry{}
		}
		return r.writeJSON(entries, true)
	}
	if len(entries) == 0 {
		return r.writePlain("No ignores\n")
	}

	now := r.clock.Now()
	r.writePlainHeader(fmt.Sprintf("Ignores (%d)", len(entries)))
	for _, e := range entries {
		r.writePlain("%s  %s\n", e.ID, describeEntry(e))
		r.writePlain("    list %s, %s\n", e.ListID, describeExpiry(e, now))
		if e.Reason != "" {
			r.writePlain("    %s\n", ui.Help(e.Reason))
		}
	}
	return nil
}

func describeEntry(e models.ExclusionEntry) string {
	label := e.Snapshot.Name
	if label == "" {
		label = e.EntryID
	}
	if e.Snapshot.Artist != "" {
		label = e.Snapshot.Artist + " - " + label
	}
	return label
}

func describeExpiry(e models.ExclusionEntry, now time.Time) string {
	switch {
	case e.Permanent():
		return "permanent"
	case !e.IsActive(now):
		return ui.Warn("expired")
	default:
		left := ignores.ExpiresIn(e, now)
		return fmt.Sprintf("expires in %.1f days", left.Hours()/24)
	}
}

// IgnoresAdd ignores one or more entries for a list.
func (r *Runner) IgnoresAdd(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	listID, err := idFlag(cmd, "list")
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	cfg, err := r.lists.Get(ctx, owner, listID)
	if err != nil {
		return err
	}
	days := int(cmd.Int("days"))
	if days < 0 {
		days = cfg.DefaultIgnoreDays
	}

	var reqs []ignores.AddRequest
	for _, raw := range cmd.StringSlice("entry") {
		entryID, err := shared.NormalizeID(raw)
		if err != nil {
			return fmt.Errorf("%w: entry %q must be a UUID", shared.ErrInvalidFlag, raw)
		}
		reqs = append(reqs, ignores.AddRequest{EntryID: entryID, DurationDays: days, Reason: cmd.String("reason")})
	}

	added, err := r.ledger.AddBulk(ctx, owner, cfg.ID, reqs)
	if err != nil {
		return err
	}
	for _, e := range added {
		r.writePlain("✓ Ignored %s (%s)\n", e.EntryID, describeExpiry(e, r.clock.Now()))
	}
	return nil
}

// IgnoresRemove deletes ignores by ID.
func (r *Runner) IgnoresRemove(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one ignore ID", shared.ErrMissingArgument)
	}
	if err := r.wire(); err != nil {
		return err
	}

	n, err := r.ledger.RemoveBulk(ctx, owner, ids)
	if err != nil {
		return err
	}
	if n < len(ids) {
		r.writePlain("%s\n", ui.Warn(fmt.Sprintf("%d of %d ignores were not found", len(ids)-n, len(ids))))
	}
	return r.writePlain("✓ Removed %d ignores\n", n)
}

// IgnoresDuration changes the duration of one ignore.
func (r *Runner) IgnoresDuration(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	id := cmd.String("id")
	updated, err := r.ledger.UpdateDuration(ctx, owner, id, int(cmd.Int("days")))
	if err != nil {
		return err
	}
	if updated == nil {
		return fmt.Errorf("%w: %s", shared.ErrIgnoreNotFound, id)
	}
	return r.writePlain("✓ %s now %s\n", describeEntry(*updated), describeExpiry(*updated, r.clock.Now()))
}

// IgnoresSweep deletes the owner's expired ignores.
func (r *Runner) IgnoresSweep(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	if err := r.wire(); err != nil {
		return err
	}

	n, err := r.ledger.SweepExpired(ctx, owner)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Swept %d expired ignores\n", n)
}

// IgnoresClear deletes every ignore of the owner.
func (r *Runner) IgnoresClear(ctx context.Context, cmd *cli.Command) error {
	owner, err := ownerArg(cmd)
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to delete every ignore of %s", shared.ErrMissingArgument, owner)
	}
	if err := r.wire(); err != nil {
		return err
	}

	if err := r.ledger.Clear(ctx, owner); err != nil {
		return err
	}
	return r.writePlain("✓ Cleared all ignores\n")
}
