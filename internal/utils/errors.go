package utils

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is invalid")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")
)

// ----------------- catalog sync ------------------
var (
	// ErrMissingExternalID - у записи нет пригодного внешнего идентификатора
	ErrMissingExternalID = errors.New("record has no usable external id")
	ErrProductNotFound   = errors.New("product not found")
	// ErrProductNotLinked - операция требует товар, привязанный к поставщику
	ErrProductNotLinked = errors.New("product is not linked to a supplier record")
	ErrNoCostPrice      = errors.New("product has no cost price")
	ErrInvalidPercent   = errors.New("margin percent is invalid")
	ErrInvalidPrice     = errors.New("price is invalid")
	ErrVariantNotFound  = errors.New("variant not found")
	// ErrExternalIDTaken - внешний идентификатор уже привязан к другому товару
	ErrExternalIDTaken = errors.New("external id is already linked to another product")
	// ErrExternalIDMismatch - поставщик вернул карточку другого товара
	ErrExternalIDMismatch = errors.New("supplier returned a record for a different external id")
)

// RemoteAPIError - ошибка клиента API поставщика: транспорт, авторизация,
// лимиты или отказ на уровне протокола. Передается вызывающему без изменений.
type RemoteAPIError struct {
	Status       int    // HTTP статус; 0 если ответ не получен
	ProviderCode int    // код ошибки поставщика из тела ответа
	Message      string // сообщение поставщика
	Body         string // сырое тело ответа
	Err          error  // исходная ошибка транспорта, если есть
}

func (e *RemoteAPIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("supplier api: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("supplier api: status %d, code %d: %s", e.Status, e.ProviderCode, e.Message)
	default:
		return fmt.Sprintf("supplier api: status %d, code %d", e.Status, e.ProviderCode)
	}
}

func (e *RemoteAPIError) Unwrap() error {
	return e.Err
}

// MarginViolation - цена продажи ниже минимально допустимой для себестоимости
type MarginViolation struct {
	Cost       decimal.Decimal
	Selling    decimal.Decimal
	MinSelling decimal.Decimal
	MinPercent decimal.Decimal
}

func (e *MarginViolation) Error() string {
	return fmt.Sprintf("selling price %s is below minimum %s (cost %s, minimum margin %s%%)",
		e.Selling.String(), e.MinSelling.String(), e.Cost.String(), e.MinPercent.String())
}

// IsRemoteAPIError сообщает, является ли err (или обернутая в нем ошибка) RemoteAPIError
func IsRemoteAPIError(err error) bool {
	var apiErr *RemoteAPIError
	return errors.As(err, &apiErr)
}

// IsMarginViolation сообщает, является ли err нарушением минимальной наценки
func IsMarginViolation(err error) bool {
	var mv *MarginViolation
	return errors.As(err, &mv)
}
