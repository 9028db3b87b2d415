package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownCommand - воркер не знает такой команды
var ErrUnknownCommand = errors.New("unknown job command")

type KafkaEvent = string

// События, публикуемые после фиксации транзакции
const (
	ProductSyncedEvent  KafkaEvent = "product_synced"
	ProductSkippedEvent KafkaEvent = "product_skipped"
	MarginUpdatedEvent  KafkaEvent = "margin_updated"
	BatchFinishedEvent  KafkaEvent = "batch_finished"
)

// Команды, которые воркер принимает из топика заданий
const (
	CommandImportProduct = "import_product"
	CommandImportBatch   = "import_batch"
	CommandSyncMedia     = "sync_media"
	CommandSyncReviews   = "sync_reviews"
	CommandSyncStock     = "sync_stock"
	CommandSetMargin     = "set_margin"
)

// SyncEvent - тело события синхронизации товара
type SyncEvent struct {
	Type          KafkaEvent `json:"type"`
	ProductID     string     `json:"product_id,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
	Created       bool       `json:"created,omitempty"`
	ChangedFields []string   `json:"changed_fields,omitempty"`
	Imported      int        `json:"imported,omitempty"`
	Skipped       int        `json:"skipped,omitempty"`
	Errors        int        `json:"errors,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Marshal кодирует событие для публикации
func (e SyncEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// JobCommand - команда воркеру
type JobCommand struct {
	Command         string   `json:"command"`
	ExternalID      string   `json:"external_id,omitempty"`
	ExternalIDs     []string `json:"external_ids,omitempty"`
	ProductID       string   `json:"product_id,omitempty"`
	Force           bool     `json:"force,omitempty"`
	RespectLocks    *bool    `json:"respect_locks,omitempty"`
	RespectSyncFlag *bool    `json:"respect_sync_flag,omitempty"`
	Percent         string   `json:"percent,omitempty"`
	ApplyToVariants bool     `json:"apply_to_variants,omitempty"`
	ActorID         string   `json:"actor_id,omitempty"`
}

// DecodeJobCommand разбирает тело команды
func DecodeJobCommand(data []byte) (*JobCommand, error) {
	var cmd JobCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("failed to decode job command: %w", err)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Validate проверяет, что у команды есть аргументы, нужные для ее выполнения
func (c *JobCommand) Validate() error {
	switch c.Command {
	case CommandImportProduct:
		if c.ExternalID == "" {
			return fmt.Errorf("command %s requires external_id", c.Command)
		}
	case CommandImportBatch:
		if len(c.ExternalIDs) == 0 {
			return fmt.Errorf("command %s requires external_ids", c.Command)
		}
	case CommandSyncMedia, CommandSyncReviews, CommandSyncStock:
		if c.ProductID == "" {
			return fmt.Errorf("command %s requires product_id", c.Command)
		}
	case CommandSetMargin:
		if c.ProductID == "" || c.Percent == "" {
			return fmt.Errorf("command %s requires product_id and percent", c.Command)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, c.Command)
	}
	return nil
}
