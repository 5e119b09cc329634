// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func ownerFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"u"},
		Usage:    "Owner (media server user) ID",
		Sources:  cli.EnvVars("SMARTSYNC_OWNER"),
		Required: true,
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Output raw JSON",
	}
}

// listsCommand handles smart list operations
func listsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lists",
		Aliases: []string{"ls"},
		Usage:   "Manage smart lists",
		Commands: []*cli.Command{
			{
				Name:   "ls",
				Usage:  "List an owner's smart lists",
				Flags:  []cli.Flag{ownerFlag(), jsonFlag()},
				Action: r.ListsList,
			},
			{
				Name:  "show",
				Usage: "Print a smart list configuration",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Smart list ID", Required: true},
				},
				Action: r.ListsShow,
			},
			{
				Name:  "save",
				Usage: "Create or update a smart list from a JSON file",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the list JSON, or - for stdin",
						Required: true,
					},
				},
				Action: r.ListsSave,
			},
			{
				Name:  "delete",
				Usage: "Delete a smart list and its ignores",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Smart list ID", Required: true},
				},
				Action: r.ListsDelete,
			},
			{
				Name:  "refresh",
				Usage: "Refresh one smart list, or every enabled list of the owner",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Smart list ID (default: all enabled lists)"},
					jsonFlag(),
				},
				Action: r.ListsRefresh,
			},
			{
				Name:  "preview",
				Usage: "Compute a smart list without touching the media server playlist",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Smart list ID", Required: true},
					jsonFlag(),
				},
				Action: r.ListsPreview,
			},
			{
				Name:  "export",
				Usage: "Export a computed smart list to a file",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Smart list ID", Required: true},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Export format: csv, markdown, text or json",
						Value: "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output path (default derived from the list ID)",
					},
				},
				Action: r.ListsExport,
			},
		},
	}
}

// ignoresCommand handles exclusion ledger operations
func ignoresCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "ignores",
		Aliases: []string{"ig"},
		Usage:   "Manage ignored entries",
		Commands: []*cli.Command{
			{
				Name:  "ls",
				Usage: "List ignores",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "list", Usage: "Only ignores of this smart list"},
					jsonFlag(),
				},
				Action: r.IgnoresList,
			},
			{
				Name:  "add",
				Usage: "Ignore entries for a smart list",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "list", Usage: "Smart list ID", Required: true},
					&cli.StringSliceFlag{Name: "entry", Aliases: []string{"e"}, Usage: "Entry ID (repeatable)", Required: true},
					&cli.IntFlag{Name: "days", Usage: "Ignore duration in days, 0 for permanent (default: the list's default)", Value: -1},
					&cli.StringFlag{Name: "reason", Usage: "Free-form note"},
				},
				Action: r.IgnoresAdd,
			},
			{
				Name:      "rm",
				Usage:     "Remove ignores by ID",
				ArgsUsage: "<ignore-id>...",
				Flags:     []cli.Flag{ownerFlag()},
				Action:    r.IgnoresRemove,
			},
			{
				Name:  "duration",
				Usage: "Change the duration of an ignore; expiry is recomputed from when it was created",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.StringFlag{Name: "id", Usage: "Ignore ID", Required: true},
					&cli.IntFlag{Name: "days", Usage: "New duration in days, 0 for permanent", Required: true},
				},
				Action: r.IgnoresDuration,
			},
			{
				Name:   "sweep",
				Usage:  "Delete expired ignores",
				Flags:  []cli.Flag{ownerFlag()},
				Action: r.IgnoresSweep,
			},
			{
				Name:  "clear",
				Usage: "Delete every ignore of the owner",
				Flags: []cli.Flag{
					ownerFlag(),
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm deletion"},
				},
				Action: r.IgnoresClear,
			},
		},
	}
}

// historyCommand shows recorded refresh runs
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent refresh runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "owner", Aliases: []string{"u"}, Usage: "Only runs of this owner", Sources: cli.EnvVars("SMARTSYNC_OWNER")},
			&cli.StringFlag{Name: "list", Usage: "Only runs of this smart list"},
			&cli.StringFlag{Name: "status", Usage: "Only runs with this status (succeeded, failed, skipped, orphaned)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs", Value: 20},
			&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
			&cli.IntFlag{Name: "prune-days", Usage: "Delete runs older than this many days before listing"},
			jsonFlag(),
		},
		Action: r.History,
	}
}

// daemonCommand runs the scheduler and HTTP API
func daemonCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "Run the refresh scheduler and the HTTP API until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
			&cli.BoolFlag{Name: "no-api", Usage: "Run the scheduler without the HTTP API"},
		},
		Action: r.Daemon,
	}
}

// apiCommand handles direct media server API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the media server API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}
