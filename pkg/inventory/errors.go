package inventory

import (
	"errors"
	"fmt"
)

// Common inventory errors
// 共通の在庫エラー定義

var (
	// ErrItemNotFound is returned when an item doesn't exist
	// 商品が存在しない場合のエラー
	ErrItemNotFound = errors.New("商品が見つかりません")

	// ErrItemAmbiguous is returned when name and weight match more than one item
	// 名称と規格が複数の商品に一致する場合のエラー
	ErrItemAmbiguous = errors.New("商品を一意に特定できません")

	// ErrInsufficientStock is returned when there's not enough stock
	// 在庫不足の場合のエラー
	ErrInsufficientStock = errors.New("在庫が不足しています")

	// ErrEntryNotFound is returned when a ledger entry doesn't exist
	// 台帳エントリが存在しない場合のエラー
	ErrEntryNotFound = errors.New("台帳エントリが見つかりません")

	// ErrSaleNotFound is returned when a sale doesn't exist
	// 売上が存在しない場合のエラー
	ErrSaleNotFound = errors.New("売上が見つかりません")

	// ErrIntakeNotFound is returned when an intake record doesn't exist
	// 仕入記録が存在しない場合のエラー
	ErrIntakeNotFound = errors.New("仕入記録が見つかりません")

	// ErrMovementNotFound is returned when a movement record doesn't exist
	// 移動記録が存在しない場合のエラー
	ErrMovementNotFound = errors.New("移動記録が見つかりません")

	// ErrAlertNotFound is returned when an alert doesn't exist or is already resolved
	// アラートが存在しないか解決済みの場合のエラー
	ErrAlertNotFound = errors.New("アラートが見つかりません")

	// ErrDuplicateKey is returned when an idempotency key or natural key already exists
	// 冪等キーまたは自然キーが既に存在する場合のエラー
	ErrDuplicateKey = errors.New("キーが重複しています")
)

// ValidationError represents a validation error with details
// 詳細付きバリデーションエラーを表現
type ValidationError struct {
	Field   string `json:"field"`   // エラーフィールド
	Message string `json:"message"` // エラーメッセージ
	Value   string `json:"value"`   // 無効な値
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("バリデーションエラー [%s]: %s (値: %s)", e.Field, e.Message, e.Value)
}

// BusinessRuleError represents a business rule violation
// ビジネスルール違反を表現
type BusinessRuleError struct {
	Rule    string `json:"rule"`    // ルール名
	Message string `json:"message"` // エラーメッセージ
	Context string `json:"context"` // コンテキスト情報
}

func (e BusinessRuleError) Error() string {
	return fmt.Sprintf("ビジネスルール違反 [%s]: %s (コンテキスト: %s)", e.Rule, e.Message, e.Context)
}

// StorageError represents a failure of the backing store itself
// ストレージ層の障害を表現
type StorageError struct {
	Operation string `json:"operation"` // 操作名
	Message   string `json:"message"`   // エラーメッセージ
	Cause     error  `json:"cause"`     // 原因エラー
}

func (e StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ストレージエラー [%s]: %s (原因: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("ストレージエラー [%s]: %s", e.Operation, e.Message)
}

func (e StorageError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
// 新しいバリデーションエラーを作成
func NewValidationError(field, message, value string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// NewBusinessRuleError creates a new business rule error
// 新しいビジネスルールエラーを作成
func NewBusinessRuleError(rule, message, context string) *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    rule,
		Message: message,
		Context: context,
	}
}

// NewStorageError creates a new storage error
// 新しいストレージエラーを作成
func NewStorageError(operation, message string, cause error) *StorageError {
	return &StorageError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// IsDomainError reports whether err is one of the typed domain failures that
// must be returned to the caller unchanged rather than wrapped as a storage error
func IsDomainError(err error) bool {
	var ve *ValidationError
	var be *BusinessRuleError
	var se *StorageError
	switch {
	case errors.As(err, &ve), errors.As(err, &be), errors.As(err, &se):
		return true
	case errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrItemAmbiguous),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrEntryNotFound),
		errors.Is(err, ErrSaleNotFound),
		errors.Is(err, ErrIntakeNotFound),
		errors.Is(err, ErrMovementNotFound),
		errors.Is(err, ErrAlertNotFound),
		errors.Is(err, ErrDuplicateKey):
		return true
	}
	return false
}

// wrapStorage leaves domain errors untouched and wraps anything else as a StorageError
func wrapStorage(operation, message string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return NewStorageError(operation, message, err)
}
