package pkg

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Reusable errors
var (
	SqlErrForeignKeyViolation = errors.New("foreign key violation")
	SqlError                  = errors.New("sql error")
)

// ErrorCode defines a standardized error code
type ErrorCode struct {
	Code     string
	Severity zapcore.Level
	Message  string // default message
}

var (
	// Generic app
	ErrServerCode         = ErrorCode{Code: "APP_INTERNAL", Severity: zapcore.ErrorLevel, Message: "internal error"}
	ErrRecordNotFoundCode = ErrorCode{Code: "APP_NOT_FOUND", Severity: zapcore.WarnLevel, Message: "record not found"}

	// Ingress / transport
	ErrTransportUndecryptableCode = ErrorCode{Code: "TRANSPORT_UNDECRYPTABLE", Severity: zapcore.ErrorLevel, Message: "message payload could not be decrypted"}
	ErrTransportUnparseableCode   = ErrorCode{Code: "TRANSPORT_UNPARSEABLE", Severity: zapcore.ErrorLevel, Message: "message payload could not be parsed"}

	// Record normalization
	ErrValidationCode = ErrorCode{Code: "VALIDATION_FAILED", Severity: zapcore.ErrorLevel, Message: "record failed validation"}

	// Reconciliation
	ErrReferentialIntegrityCode = ErrorCode{Code: "REFERENTIAL_INTEGRITY", Severity: zapcore.ErrorLevel, Message: "account owner could not be resolved"}

	// SQL layer
	ErrSQLUnknownCode   = ErrorCode{Code: "STORE_UNKNOWN", Severity: zapcore.ErrorLevel, Message: "sql error"}
	ErrSQLConflictCode  = ErrorCode{Code: "STORE_CONFLICT", Severity: zapcore.ErrorLevel, Message: "sql conflict"}
	ErrSQLDuplicateCode = ErrorCode{Code: "STORE_DUPLICATE", Severity: zapcore.ErrorLevel, Message: "duplicate record"}
	ErrSQLInvalidInput  = ErrorCode{Code: "STORE_INVALID_INPUT", Severity: zapcore.ErrorLevel, Message: "invalid input"}
)

type AppError struct {
	Code    ErrorCode
	Message string // operator-facing message
	Cause   error  // internal cause (wrapped)
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func NewAppError(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// LogAppError is the operator-facing error surface: it writes a record at the
// code's severity with the batch id and error detail. Unknown errors are
// logged as APP_INTERNAL.
func LogAppError(logger *zap.Logger, batchID string, err error) {
	code := ErrServerCode
	var appErr AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	logger.Log(code.Severity, "batch processing failed",
		zap.String(BatchId, batchID),
		zap.String("code", code.Code),
		zap.Error(err))
}

// HandleSQLError maps pg errors -> AppError with proper codes
func HandleSQLError(logger *zap.Logger, err error) error {
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("sql error : no records found")
		return NewAppError(ErrRecordNotFoundCode, "no records found", err)
	}
	if !errors.As(err, &pgErr) {
		logger.Error("sql error : unknown", zap.Error(err))
		return NewAppError(ErrSQLUnknownCode, "sql error", err)
	}

	// Log rich pg error context
	logger.Error("sql error",
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("schema", pgErr.SchemaName),
		zap.String("table", pgErr.TableName),
		zap.String("column", pgErr.ColumnName),
		zap.String("constraint", pgErr.ConstraintName),
	)

	switch pgErr.Code {
	case "23505": // unique_violation
		return NewAppError(ErrSQLDuplicateCode, "duplicate value violates unique constraint", SqlError)
	case "23503": // foreign_key_violation
		return NewAppError(ErrSQLConflictCode, "foreign key violation", SqlErrForeignKeyViolation)
	case "22P02": // invalid_text_representation Ex: bad UUID
		return NewAppError(ErrSQLInvalidInput, "invalid input syntax", SqlError)
	case "22001": // string_data_right_truncation
		return NewAppError(ErrSQLInvalidInput, "value too long for column", SqlError)
	case "22003": // numeric_value_out_of_range
		return NewAppError(ErrSQLInvalidInput, "numeric value out of range", SqlError)
	default:
		return NewAppError(ErrSQLUnknownCode, "sql error", SqlError)
	}
}
