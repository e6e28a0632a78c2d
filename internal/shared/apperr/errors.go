package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration は起動時に修正すべき設定不備を表す（リトライ不可）
	ErrConfiguration = errors.New("configuration error")

	// ErrTransient は外部サービス呼び出しの失敗・タイムアウトを表す（呼び出し側でリトライ可能）
	ErrTransient = errors.New("transient service error")
)

// ConfigError は設定値の不備を表します
type ConfigError struct {
	Field  string // 問題のある設定項目
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is は errors.Is(err, ErrConfiguration) を成立させます
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigError は新しいConfigErrorを作成します
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// ServiceError は embedding / vector store / completion 呼び出しの失敗を表します
type ServiceError struct {
	Service string // "embedding", "vector-store", "completion" など
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is は errors.Is(err, ErrTransient) を成立させます
func (e *ServiceError) Is(target error) bool {
	return target == ErrTransient
}

// NewServiceError は新しいServiceErrorを作成します
// err が既に設定エラーの場合はそのまま返し、一時的エラーに格下げしない
func NewServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConfiguration(err) {
		return err
	}
	return &ServiceError{
		Service: service,
		Op:      op,
		Err:     err,
	}
}

// IsConfiguration は err が設定エラーかどうかを返します
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsTransient は err が一時的なサービスエラーかどうかを返します
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
