package models

import "time"

// SyncStatus - состояние синхронизации локального товара
type SyncStatus string

const (
	SyncNotImported SyncStatus = "not_imported"
	SyncLocalOnly   SyncStatus = "local_only"
	SyncDisabled    SyncStatus = "sync_disabled"
	SyncNeverSynced SyncStatus = "never_synced"
	SyncSynced      SyncStatus = "synced"
	SyncStale       SyncStatus = "stale"
)

// SyncState - минимальный срез товара, нужный для классификации
type SyncState struct {
	ProductID    string
	ExternalID   *string
	SyncEnabled  bool
	LastSyncedAt *time.Time
}

// State возвращает срез товара для классификации
func (p *Product) State() SyncState {
	return SyncState{
		ProductID:    p.ID,
		ExternalID:   p.ExternalID,
		SyncEnabled:  p.SyncEnabled,
		LastSyncedAt: p.LastSyncedAt,
	}
}

// SyncSummary - количество товаров в каждом состоянии
type SyncSummary struct {
	Counts     map[SyncStatus]int `json:"counts"`
	Total      int                `json:"total"`
	ComputedAt time.Time          `json:"computed_at"`
}
