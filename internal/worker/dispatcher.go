package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/adapters/messaging"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/internal/domain/services"
	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/shopspring/decimal"
)

// Importer - операции импорта, которые запускаются командами
type Importer interface {
	ImportByExternalID(ctx context.Context, externalID string, opts services.ImportOptions) (*services.ImportResult, error)
	ImportBatch(ctx context.Context, externalIDs []string, opts services.ImportOptions) (*services.BatchResult, error)
	SyncMedia(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
	SyncStock(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
	SyncReviews(ctx context.Context, productID string, opts services.ImportOptions) (*services.ImportResult, error)
}

// MarginSetter - пересчет цены по проценту наценки
type MarginSetter interface {
	SetMarginPercent(ctx context.Context, productID string, percent decimal.Decimal, applyToVariants bool, actor models.Actor) (*services.MarginResult, error)
}

// Статусы обработки сообщения для метрик
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// Observer получает итог обработки каждого сообщения
type Observer func(topic, status string, duration time.Duration)

// Dispatcher разбирает команды из топика заданий и вызывает сервисы
type Dispatcher struct {
	importer Importer
	margins  MarginSetter
	defaults services.ImportOptions
	logger   interfaces.LoggerPort
	observe  Observer
}

// NewDispatcher создает новый экземпляр Dispatcher. defaults - параметры импорта,
// которые команда может переопределить. observe может быть nil.
func NewDispatcher(importer Importer, margins MarginSetter, defaults services.ImportOptions, logger interfaces.LoggerPort, observe Observer) *Dispatcher {
	if observe == nil {
		observe = func(string, string, time.Duration) {}
	}
	return &Dispatcher{
		importer: importer,
		margins:  margins,
		defaults: defaults,
		logger:   logger,
		observe:  observe,
	}
}

// Handle обрабатывает одно сообщение. Неизвестная команда не считается ошибкой:
// повторная доставка ее не исправит.
func (d *Dispatcher) Handle(ctx context.Context, msg *interfaces.Message) error {
	startTime := time.Now()

	d.logger.InfoWithContext(ctx, "Получена команда",
		interfaces.LogField{Key: "message_id", Value: msg.ID},
		interfaces.LogField{Key: "topic", Value: msg.Topic},
	)

	cmd, err := messaging.DecodeJobCommand(msg.Value)
	if err != nil {
		if errors.Is(err, messaging.ErrUnknownCommand) {
			d.logger.WarnWithContext(ctx, "Неизвестный тип команды",
				interfaces.LogField{Key: "error", Value: err.Error()})
			d.observe(msg.Topic, StatusUnknown, time.Since(startTime))
			return nil
		}
		d.logger.ErrorWithContext(ctx, "Ошибка декодирования команды",
			interfaces.LogField{Key: "error", Value: err.Error()})
		d.observe(msg.Topic, StatusError, time.Since(startTime))
		return err
	}

	cmdCtx := ctx
	if cmd.ActorID != "" {
		cmdCtx = context.WithValue(ctx, interfaces.ActorIDKey, cmd.ActorID)
	}

	if err := d.dispatch(cmdCtx, cmd); err != nil {
		d.logger.ErrorWithContext(cmdCtx, "Ошибка обработки команды",
			interfaces.LogField{Key: "command", Value: cmd.Command},
			interfaces.LogField{Key: "error", Value: err.Error()})
		d.observe(msg.Topic, StatusError, time.Since(startTime))
		return err
	}

	duration := time.Since(startTime)
	d.observe(msg.Topic, StatusSuccess, duration)
	d.logger.InfoWithContext(cmdCtx, "Команда успешно обработана",
		interfaces.LogField{Key: "command", Value: cmd.Command},
		interfaces.LogField{Key: "duration", Value: duration.Seconds()},
	)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *messaging.JobCommand) error {
	opts := importOptions(d.defaults, cmd)

	switch cmd.Command {
	case messaging.CommandImportProduct:
		_, err := d.importer.ImportByExternalID(ctx, cmd.ExternalID, opts)
		return err

	case messaging.CommandImportBatch:
		result, err := d.importer.ImportBatch(ctx, cmd.ExternalIDs, opts)
		if err != nil {
			return err
		}
		d.logger.InfoWithContext(ctx, "Пакетный импорт завершен",
			interfaces.LogField{Key: "imported", Value: result.Imported},
			interfaces.LogField{Key: "skipped", Value: result.Skipped},
			interfaces.LogField{Key: "errors", Value: result.Errors},
		)
		return nil

	case messaging.CommandSyncMedia:
		_, err := d.importer.SyncMedia(ctx, cmd.ProductID, opts)
		return err

	case messaging.CommandSyncStock:
		_, err := d.importer.SyncStock(ctx, cmd.ProductID, opts)
		return err

	case messaging.CommandSyncReviews:
		_, err := d.importer.SyncReviews(ctx, cmd.ProductID, opts)
		return err

	case messaging.CommandSetMargin:
		percent, err := decimal.NewFromString(cmd.Percent)
		if err != nil {
			return fmt.Errorf("invalid percent %q: %w", cmd.Percent, err)
		}
		_, err = d.margins.SetMarginPercent(ctx, cmd.ProductID, percent, cmd.ApplyToVariants, opts.Actor)
		return err
	}

	return fmt.Errorf("%w: %q", messaging.ErrUnknownCommand, cmd.Command)
}

// importOptions - параметры фоновой синхронизации с переопределениями из команды
func importOptions(opts services.ImportOptions, cmd *messaging.JobCommand) services.ImportOptions {
	opts.Actor = models.Actor{Type: models.ActorJob, ID: cmd.ActorID}
	opts.Force = cmd.Force
	if cmd.RespectLocks != nil {
		opts.RespectLocks = *cmd.RespectLocks
	}
	if cmd.RespectSyncFlag != nil {
		opts.RespectSyncFlag = *cmd.RespectSyncFlag
	}
	return opts
}
