// package scheduler turns login events, the periodic timer and manual requests into
// per-owner refresh passes.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/shared"
	"github.com/desertthunder/smartsync/internal/tasks"
)

const defaultQueueSize = 64

// ListStore is the slice of the smart list repository the scheduler needs.
type ListStore interface {
	List(ctx context.Context, ownerID string) ([]*models.SmartListConfig, error)
	Get(ctx context.Context, ownerID, id string) (*models.SmartListConfig, error)
	Save(ctx context.Context, cfg *models.SmartListConfig) error
	// Delete removes a list together with its ignores.
	Delete(ctx context.Context, ownerID, id string) error
	OwnersWithEnabledLists(ctx context.Context) ([]string, error)
}

// Sweeper hard-deletes expired ignores.
type Sweeper interface {
	SweepExpired(ctx context.Context, ownerID string) (int, error)
}

// RunLog records refresh outcomes.
type RunLog interface {
	Create(ctx context.Context, run *models.RefreshRun) error
}

// RefreshRequest asks for a refresh pass over all enabled lists of one owner.
type RefreshRequest struct {
	OwnerID string
	Reason  models.Reason
}

// Scheduler owns the refresh queue, the login cooldown map and the periodic timer.
//
// At most one request per owner is queued at any time; further requests for that owner are
// dropped until the pass finishes. Independently, at most one refresh per owner executes at a
// time: queued passes wait for a running manual refresh, and manual refreshes are refused while
// any refresh of the owner is running.
type Scheduler struct {
	lists     ListStore
	refresher tasks.Refresher
	sweeper   Sweeper
	runs      RunLog

	interval time.Duration
	settle   time.Duration
	cooldown time.Duration
	clock    models.Clock
	logger   *log.Logger

	queue chan RefreshRequest

	mu        sync.Mutex
	lastLogin map[string]time.Time
	pending   map[string]bool
	// inflight holds a channel per owner with a refresh executing; it is closed on release.
	inflight map[string]chan struct{}
}

// New creates a Scheduler from cfg. runs may be nil to disable the run log.
func New(lists ListStore, refresher tasks.Refresher, sweeper Sweeper, runs RunLog, cfg shared.SchedulerConfig, clock models.Clock, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	interval := cfg.Interval()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		lists:     lists,
		refresher: refresher,
		sweeper:   sweeper,
		runs:      runs,
		interval:  interval,
		settle:    cfg.SettleDelay(),
		cooldown:  cfg.Cooldown(),
		clock:     clock,
		logger:    shared.WithLogger(logger, "component", "scheduler"),
		queue:     make(chan RefreshRequest, size),
		lastLogin: make(map[string]time.Time),
		pending:   make(map[string]bool),
		inflight:  make(map[string]chan struct{}),
	}
}

// NextBoundary returns the first instant after t that is a whole multiple of every.
func NextBoundary(t time.Time, every time.Duration) time.Time {
	return t.Truncate(every).Add(every)
}

// NextQuarterHour returns the next time after t whose minute is a multiple of 15.
func NextQuarterHour(t time.Time) time.Time {
	return NextBoundary(t, 15*time.Minute)
}

// Enqueue adds req to the queue unless the owner already has a pass queued or running, or
// the queue is full. It reports whether the request was accepted.
func (s *Scheduler) Enqueue(req RefreshRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[req.OwnerID] {
		s.logger.Debug("refresh already pending", "owner", req.OwnerID, "reason", req.Reason)
		return false
	}

	select {
	case s.queue <- req:
		s.pending[req.OwnerID] = true
		return true
	default:
		s.logger.Warn("refresh queue full, dropping request", "owner", req.OwnerID, "reason", req.Reason)
		return false
	}
}

// Pending reports whether ownerID has a pass queued or running.
func (s *Scheduler) Pending(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[ownerID]
}

// Running reports whether a refresh of ownerID is executing.
func (s *Scheduler) Running(ownerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[ownerID]
	return ok
}

// claim marks ownerID as refreshing and returns the release func. When another refresh of the
// owner holds the claim, release is nil and busy is closed once that refresh finishes.
func (s *Scheduler) claim(ownerID string) (release func(), busy <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.inflight[ownerID]; ok {
		return nil, ch
	}
	ch := make(chan struct{})
	s.inflight[ownerID] = ch
	return func() {
		s.mu.Lock()
		delete(s.inflight, ownerID)
		s.mu.Unlock()
		close(ch)
	}, nil
}

// awaitClaim blocks until ownerID can be claimed or ctx is done.
func (s *Scheduler) awaitClaim(ctx context.Context, ownerID string) (func(), error) {
	for {
		release, busy := s.claim(ownerID)
		if release != nil {
			return release, nil
		}
		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SessionStarted handles a login event. Unless the owner triggered a login refresh within the
// cooldown window, a refresh is enqueued after the settle delay. It reports whether a refresh
// was scheduled.
func (s *Scheduler) SessionStarted(ownerID string) bool {
	now := s.clock.Now()

	s.mu.Lock()
	if last, ok := s.lastLogin[ownerID]; ok && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		s.logger.Debug("login refresh in cooldown", "owner", ownerID, "since", now.Sub(last))
		return false
	}
	s.lastLogin[ownerID] = now
	s.mu.Unlock()

	req := RefreshRequest{OwnerID: ownerID, Reason: models.ReasonLogin}
	if s.settle <= 0 {
		s.Enqueue(req)
	} else {
		time.AfterFunc(s.settle, func() { s.Enqueue(req) })
	}
	s.logger.Info("login refresh scheduled", "owner", ownerID, "delay", s.settle)
	return true
}

// EnqueueAll enqueues a pass for every owner with at least one enabled list and returns how
// many requests were accepted.
func (s *Scheduler) EnqueueAll(ctx context.Context, reason models.Reason) int {
	owners, err := s.lists.OwnersWithEnabledLists(ctx)
	if err != nil {
		s.logger.Error("failed to list owners", "error", err)
		return 0
	}

	accepted := 0
	for _, owner := range owners {
		if s.Enqueue(RefreshRequest{OwnerID: owner, Reason: reason}) {
			accepted++
		}
	}
	s.logger.Info("periodic sweep queued", "owners", len(owners), "accepted", accepted)
	return accepted
}

// Run processes the queue and fires the periodic sweep on interval boundaries until ctx is
// cancelled. Requests are processed one at a time.
func (s *Scheduler) Run(ctx context.Context) error {
	next := NextBoundary(s.clock.Now(), s.interval)
	timer := time.NewTimer(next.Sub(s.clock.Now()))
	defer timer.Stop()

	s.logger.Info("scheduler started", "interval", s.interval, "next", next.Format(time.RFC3339))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
			s.EnqueueAll(ctx, models.ReasonPeriodic)
			timer.Reset(NextBoundary(s.clock.Now(), s.interval).Sub(s.clock.Now()))
		case req := <-s.queue:
			s.process(ctx, req)
		}
	}
}

func (s *Scheduler) process(ctx context.Context, req RefreshRequest) {
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.OwnerID)
		s.mu.Unlock()
	}()

	release, err := s.awaitClaim(ctx, req.OwnerID)
	if err != nil {
		s.logger.Warn("queued refresh abandoned", "owner", req.OwnerID, "reason", req.Reason, "error", err)
		return
	}
	defer release()

	summary := s.refreshOwner(ctx, req.OwnerID, req.Reason)
	s.logger.Info("refresh pass finished", "owner", req.OwnerID, "reason", req.Reason, "summary", summary.String())
}

// Outcome is the result of one list within a pass.
type Outcome struct {
	ListID string
	Name   string
	Status models.RunStatus
	Result models.SyncResult
}

// BatchSummary describes a refresh pass over one owner's lists.
type BatchSummary struct {
	OwnerID   string
	Reason    models.Reason
	Swept     int
	Succeeded int
	Failed    int
	Skipped   int
	Orphaned  int
	Cancelled bool
	// Busy is set when the pass was refused because another refresh of the owner was running.
	Busy     bool
	Outcomes []Outcome
}

// String renders the summary as "N succeeded, M failed" with optional extras.
func (b BatchSummary) String() string {
	if b.Busy {
		return shared.ErrRefreshInProgress.Error()
	}
	s := fmt.Sprintf("%d succeeded, %d failed", b.Succeeded, b.Failed)
	if b.Orphaned > 0 {
		s += fmt.Sprintf(", %d orphaned", b.Orphaned)
	}
	if b.Skipped > 0 {
		s += fmt.Sprintf(", %d skipped", b.Skipped)
	}
	if b.Cancelled {
		s += " (cancelled)"
	}
	return s
}

func (b *BatchSummary) add(o Outcome) {
	switch o.Status {
	case models.RunSucceeded:
		b.Succeeded++
	case models.RunFailed:
		b.Failed++
	case models.RunSkipped:
		b.Skipped++
	case models.RunOrphaned:
		b.Orphaned++
	}
	b.Outcomes = append(b.Outcomes, o)
}

// RefreshOwner sweeps the owner's expired ignores, then refreshes each enabled list.
//
// Orphaned lists are deleted along with their ignores instead of refreshed. Successful results
// are saved. One list's failure never stops the pass. Cancellation is observed between lists only;
// a list that has started is carried to completion.
//
// When a refresh of the owner is already running the pass does not start and the summary has
// Busy set.
func (s *Scheduler) RefreshOwner(ctx context.Context, ownerID string, reason models.Reason) BatchSummary {
	release, _ := s.claim(ownerID)
	if release == nil {
		s.logger.Info("refresh already running, request refused", "owner", ownerID, "reason", reason)
		return BatchSummary{OwnerID: ownerID, Reason: reason, Busy: true}
	}
	defer release()
	return s.refreshOwner(ctx, ownerID, reason)
}

func (s *Scheduler) refreshOwner(ctx context.Context, ownerID string, reason models.Reason) BatchSummary {
	summary := BatchSummary{OwnerID: ownerID, Reason: reason}
	logger := shared.WithLogger(s.logger, "owner", ownerID, "reason", reason)
	work := context.WithoutCancel(ctx)

	if s.sweeper != nil {
		n, err := s.sweeper.SweepExpired(work, ownerID)
		if err != nil {
			logger.Error("failed to sweep expired ignores", "error", err)
		}
		summary.Swept = n
	}

	lists, err := s.lists.List(work, ownerID)
	if err != nil {
		logger.Error("failed to load lists", "error", err)
		summary.Failed++
		return summary
	}

	for _, cfg := range lists {
		if ctx.Err() != nil {
			summary.Cancelled = true
			logger.Warn("refresh pass cancelled", "processed", len(summary.Outcomes))
			break
		}
		if !cfg.Enabled {
			continue
		}
		summary.add(s.refreshList(work, cfg, reason, true, nil))
	}
	return summary
}

// RefreshList refreshes one list on demand and saves it on success. Orphaned lists are
// recreated rather than deleted, since the request names the list explicitly.
func (s *Scheduler) RefreshList(ctx context.Context, ownerID, listID string, reason models.Reason) (Outcome, error) {
	return s.RefreshListProgress(ctx, ownerID, listID, reason, nil)
}

// RefreshListProgress is [Scheduler.RefreshList] with phase updates sent to progress.
// Updates are dropped rather than blocking when progress is full. It fails with
// [shared.ErrRefreshInProgress] while another refresh of the owner is running.
func (s *Scheduler) RefreshListProgress(ctx context.Context, ownerID, listID string, reason models.Reason, progress chan<- tasks.ProgressUpdate) (Outcome, error) {
	release, _ := s.claim(ownerID)
	if release == nil {
		return Outcome{}, fmt.Errorf("%w: owner %s", shared.ErrRefreshInProgress, ownerID)
	}
	defer release()

	cfg, err := s.lists.Get(ctx, ownerID, listID)
	if err != nil {
		return Outcome{}, err
	}
	return s.refreshList(context.WithoutCancel(ctx), cfg, reason, false, progress), nil
}

func (s *Scheduler) refreshList(ctx context.Context, cfg *models.SmartListConfig, reason models.Reason, pruneOrphans bool, progress chan<- tasks.ProgressUpdate) Outcome {
	logger := shared.WithLogger(s.logger, "owner", cfg.OwnerID, "list", cfg.ID)
	started := s.clock.Now()
	out := Outcome{ListID: cfg.ID, Name: cfg.Name}

	if pruneOrphans {
		orphaned, err := s.refresher.IsOrphaned(ctx, cfg)
		if err != nil {
			out.Status = models.RunFailed
			out.Result = models.Failed("%v", err)
			logger.Error("orphan check failed", "error", err)
			s.record(ctx, cfg, reason, out, started)
			return out
		}
		if orphaned {
			out.Status = models.RunOrphaned
			out.Result = models.SyncResult{Success: true, Message: "external playlist deleted; list removed"}
			if err := s.lists.Delete(ctx, cfg.OwnerID, cfg.ID); err != nil {
				out.Status = models.RunFailed
				out.Result = models.Failed("removing orphaned list: %v", err)
				logger.Error("failed to delete orphaned list", "error", err)
			} else {
				logger.Info("deleted orphaned list", "name", cfg.Name, "external_id", cfg.ExternalListID)
			}
			s.record(ctx, cfg, reason, out, started)
			return out
		}
	}

	out.Result = s.refresher.Refresh(ctx, cfg, progress)
	switch {
	case !out.Result.Success:
		out.Status = models.RunFailed
	case !cfg.Enabled:
		out.Status = models.RunSkipped
	default:
		out.Status = models.RunSucceeded
		if err := s.lists.Save(ctx, cfg); err != nil {
			out.Status = models.RunFailed
			out.Result = models.Failed("%v: saving list: %v", shared.ErrPersistence, err)
			logger.Error("failed to save refreshed list", "error", err)
		}
	}

	s.record(ctx, cfg, reason, out, started)
	return out
}

func (s *Scheduler) record(ctx context.Context, cfg *models.SmartListConfig, reason models.Reason, out Outcome, started time.Time) {
	if s.runs == nil {
		return
	}
	run := models.NewRefreshRun(cfg, reason, out.Result, started, s.clock.Now())
	run.Status = out.Status
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("failed to record refresh run", "list", cfg.ID, "error", err)
	}
}
