package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/composer"
	"github.com/desertthunder/smartsync/internal/ignores"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/repositories"
	"github.com/desertthunder/smartsync/internal/scheduler"
	"github.com/desertthunder/smartsync/internal/services"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/store"
	"github.com/desertthunder/smartsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and the media server wiring are opened lazily by [Runner.wire] so that commands such as
// setup work before a database exists.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	clock      models.Clock

	db        *sql.DB
	docs      store.DocumentStore
	client    *services.MediaServerClient
	catalog   services.Catalog
	playlists services.PlaylistStore
	owners    services.OwnerResolver

	ledger    *ignores.Ledger
	lists     *repositories.SmartListRepository
	runs      *repositories.RunRepository
	engine    *tasks.SyncEngine
	scheduler *scheduler.Scheduler
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Any of DB, Store, Catalog, Playlists and Owners left nil is built from Config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Clock      models.Clock // nil uses the wall clock
	DB         *sql.DB
	Store      store.DocumentStore
	Catalog    services.Catalog
	Playlists  services.PlaylistStore
	Owners     services.OwnerResolver
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		clock:      opts.Clock,
		db:         opts.DB,
		docs:       opts.Store,
		catalog:    opts.Catalog,
		playlists:  opts.Playlists,
		owners:     opts.Owners,
	}
}

// wire opens the database and document store and builds the engine and scheduler on first use.
func (r *Runner) wire() error {
	if r.scheduler != nil {
		return nil
	}

	if r.db == nil {
		db, err := shared.OpenMigrated(r.config.Database)
		if err != nil {
			return fmt.Errorf("%w: opening database: %v", shared.ErrPersistence, err)
		}
		r.db = db
	}
	if r.docs == nil {
		docs, err := store.Open(r.config, r.db)
		if err != nil {
			return err
		}
		r.docs = docs
	}

	if r.catalog == nil || r.playlists == nil || r.owners == nil {
		r.client = services.NewMediaServerClient(r.config.MediaServer, r.logger)
		if r.catalog == nil {
			r.catalog = r.client
		}
		if r.playlists == nil {
			r.playlists = r.client
		}
		if r.owners == nil {
			r.owners = r.client
		}
	}

	r.ledger = ignores.New(r.docs, r.clock, r.logger)
	r.lists = repositories.NewSmartListRepository(r.docs, r.ledger, r.clock)
	r.runs = repositories.NewRunRepository(r.db)
	r.engine = tasks.NewSyncEngine(r.catalog, r.playlists, r.owners, composer.New(r.ledger, r.logger), r.clock, r.logger)
	r.scheduler = scheduler.New(r.lists, r.engine, r.ledger, r.runs, r.config.Scheduler, r.clock, r.logger)
	return nil
}

// Close releases the document store and database.
func (r *Runner) Close() error {
	var errs []error
	if r.docs != nil {
		errs = append(errs, r.docs.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, listsCommand, ignoresCommand, historyCommand, daemonCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
