package policy

import (
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
)

// DefaultStaleThreshold - порог устаревания по умолчанию
const DefaultStaleThreshold = 24 * time.Hour

// Classify определяет состояние синхронизации товара.
// Stale - строго раньше now-threshold; ровно на границе товар считается Synced.
// threshold <= 0 заменяется на DefaultStaleThreshold.
func Classify(state models.SyncState, threshold time.Duration, now time.Time) models.SyncStatus {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	switch {
	case state.ExternalID == nil || *state.ExternalID == "":
		return models.SyncLocalOnly
	case !state.SyncEnabled:
		return models.SyncDisabled
	case state.LastSyncedAt == nil:
		return models.SyncNeverSynced
	case state.LastSyncedAt.Before(now.Add(-threshold)):
		return models.SyncStale
	default:
		return models.SyncSynced
	}
}

// ClassifyListing классифицирует строку удаленного листинга.
// local == nil означает, что товар поставщика еще не импортирован.
func ClassifyListing(local *models.SyncState, threshold time.Duration, now time.Time) models.SyncStatus {
	if local == nil {
		return models.SyncNotImported
	}
	return Classify(*local, threshold, now)
}
