// ABOUTME: Decides how one Google event affects its linked local event
// ABOUTME: Pure function over revision tags and sync timestamps: create, apply, skip, or conflict
package sync

import (
	"time"

	"github.com/harperreed/dayplan/models"
)

// Action is the outcome of comparing a Google event with its local record.
type Action string

const (
	ActionCreate   Action = "create"
	ActionApply    Action = "apply"
	ActionSkip     Action = "skip"
	ActionConflict Action = "conflict"
)

// Resolution is the resolver's decision. Conflict is set only for ActionConflict.
type Resolution struct {
	Action   Action
	Conflict *models.ImportConflict
}

// Resolve compares a linked record (nil if none) with the Google event's
// etag and updated time.
//
// Local changed means UpdatedAt is strictly after ExternalSyncedAt; equal
// instants count as unchanged. External changed means the etag differs from
// the stored revision tag.
//
//	local  external  action
//	no     no        skip
//	no     yes       apply
//	yes    no        apply
//	yes    yes       conflict
//
// A local-only edit therefore resolves to apply whenever Google returns the
// event, so full and fallback fetches discard it in favour of the Google copy.
// Incremental fetches only return events changed at Google and leave it alone.
func Resolve(existing *models.EventSyncInfo, etag string, externalUpdated time.Time) Resolution {
	if existing == nil {
		return Resolution{Action: ActionCreate}
	}

	localChanged := localChangedSinceSync(existing)
	externalChanged := existing.ExternalRevisionTag == nil || *existing.ExternalRevisionTag != etag

	switch {
	case !localChanged && !externalChanged:
		return Resolution{Action: ActionSkip}
	case localChanged && externalChanged:
		return Resolution{
			Action: ActionConflict,
			Conflict: &models.ImportConflict{
				EventID:           existing.EventID,
				Title:             existing.Title,
				LocalUpdatedAt:    existing.UpdatedAt,
				ExternalUpdatedAt: externalUpdated,
			},
		}
	default:
		return Resolution{Action: ActionApply}
	}
}

func localChangedSinceSync(existing *models.EventSyncInfo) bool {
	if existing.ExternalSyncedAt == nil {
		return true
	}
	return existing.UpdatedAt.After(*existing.ExternalSyncedAt)
}
