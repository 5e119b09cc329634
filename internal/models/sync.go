package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/smartsync/internal/shared"
)

// SyncResult is the outcome of one list refresh.
type SyncResult struct {
	Success        bool          `json:"success"`
	Message        string        `json:"message"`
	ExternalListID string        `json:"externalListId,omitempty"`
	ItemCount      int           `json:"itemCount"`
	TotalRuntime   time.Duration `json:"totalRuntime"`
	// Created is set when the external playlist was created during this refresh.
	Created bool `json:"created,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(format string, args ...any) SyncResult {
	return SyncResult{Success: false, Message: fmt.Sprintf(format, args...)}
}

// Reason identifies what triggered a refresh.
type Reason string

const (
	ReasonLogin    Reason = "login"
	ReasonPeriodic Reason = "periodic"
	ReasonManual   Reason = "manual"
)

// RunStatus is the persisted outcome of a [RefreshRun].
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
	RunOrphaned  RunStatus = "orphaned"
)

// RefreshRun records one list refresh in the run history.
type RefreshRun struct {
	ID             string     `json:"id"`
	Sequence       int64      `json:"sequence"`
	OwnerID        string     `json:"ownerId"`
	ListID         string     `json:"listId"`
	ListName       string     `json:"listName"`
	Reason         Reason     `json:"reason"`
	Status         RunStatus  `json:"status"`
	Message        string     `json:"message,omitempty"`
	ExternalListID string     `json:"externalListId,omitempty"`
	ItemCount      int        `json:"itemCount"`
	RuntimeSeconds int64      `json:"runtimeSeconds"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewRefreshRun builds a run record from a list and its refresh result.
func NewRefreshRun(cfg *SmartListConfig, reason Reason, result SyncResult, started, completed time.Time) *RefreshRun {
	status := RunSucceeded
	switch {
	case !result.Success:
		status = RunFailed
	case !cfg.Enabled:
		status = RunSkipped
	}
	return &RefreshRun{
		ID:             shared.GenerateID(),
		OwnerID:        cfg.OwnerID,
		ListID:         cfg.ID,
		ListName:       cfg.Name,
		Reason:         reason,
		Status:         status,
		Message:        result.Message,
		ExternalListID: result.ExternalListID,
		ItemCount:      result.ItemCount,
		RuntimeSeconds: int64(result.TotalRuntime / time.Second),
		StartedAt:      started,
		CompletedAt:    &completed,
	}
}

// Validate checks the fields required to persist a run.
func (r *RefreshRun) Validate() error {
	if r.OwnerID == "" {
		return shared.ValidationError{Field: "ownerId", Message: "owner id is required"}
	}
	if r.ListID == "" {
		return shared.ValidationError{Field: "listId", Message: "list id is required"}
	}
	switch r.Status {
	case RunSucceeded, RunFailed, RunSkipped, RunOrphaned:
	default:
		return shared.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", r.Status)}
	}
	switch r.Reason {
	case ReasonLogin, ReasonPeriodic, ReasonManual:
	default:
		return shared.ValidationError{Field: "reason", Message: fmt.Sprintf("unknown reason %q", r.Reason)}
	}
	return nil
}
