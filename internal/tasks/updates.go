package tasks

import (
	"fmt"

	"github.com/desertthunder/smartsync/internal/models"
	"github.com/desertthunder/smartsync/internal/rules"
)

// ProgressUpdate represents a progress event during a refresh.
//
// Used to send real-time updates to the CLI or API layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	Validate Phase = iota
	ResolveOwner
	FetchCatalog
	FetchSource
	Compose
	CreatePlaylist
	UpdatePlaylist
	Done
)

func (p Phase) String() string {
	switch p {
	case Validate:
		return "validate"
	case ResolveOwner:
		return "resolve_owner"
	case FetchCatalog:
		return "fetch_catalog"
	case FetchSource:
		return "fetch_source"
	case Compose:
		return "compose"
	case CreatePlaylist:
		return "create_playlist"
	case UpdatePlaylist:
		return "update_playlist"
	case Done:
		return "done"
	default:
		return ""
	}
}

func validateUpdate(cfg *models.SmartListConfig) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Validating %s...", cfg.Name),
	}
}

func resolveOwnerUpdate(ownerID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveOwner,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Resolving owner %s...", ownerID),
	}
}

func fetchCatalogUpdate(step, total int) ProgressUpdate {
	msg := "Fetching catalog..."
	if step > 0 {
		msg = fmt.Sprintf("Fetched %d catalog entries", total)
	}
	return ProgressUpdate{
		Phase:   FetchCatalog,
		Step:    step,
		Total:   total,
		Message: msg,
	}
}

func fetchSourceUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchSource,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching source playlist (%s)...", id),
	}
}

func composeUpdate(sel rules.Selection, candidates int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Compose,
		Step:    len(sel.Entries),
		Total:   candidates,
		Message: fmt.Sprintf("Selected %d of %d entries", len(sel.Entries), candidates),
		Data:    sel,
	}
}

func createPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist %s...", name),
	}
}

func updatePlaylistUpdate(id string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UpdatePlaylist,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Writing %d entries to playlist %s...", count, id),
	}
}

func doneUpdate(result models.SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: result.Message,
		Data:    result,
	}
}
