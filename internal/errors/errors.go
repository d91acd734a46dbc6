package errors

import (
	"fmt"
	"strings"
)

// AppError represents a structured application error. When Title, Why or
// Fixes are set the error is a refusal: the run stops and the caller gets
// enough context to repair the input.
type AppError struct {
	Code    string
	Message string
	Cause   error

	Title   string
	Why     string
	Fixes   []string
	Details map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRefusal reports whether the error carries remediation guidance.
func (e *AppError) IsRefusal() bool {
	return e.Title != "" || len(e.Fixes) > 0
}

// Describe renders the full refusal: title, problem, rationale and numbered fixes.
func (e *AppError) Describe() string {
	var b strings.Builder
	title := e.Title
	if title == "" {
		title = e.Code
	}
	fmt.Fprintf(&b, "[%s] %s\n", e.Code, title)
	fmt.Fprintf(&b, "Problem: %s\n", e.Error())
	if e.Why != "" {
		fmt.Fprintf(&b, "Why it matters: %s\n", e.Why)
	}
	if len(e.Fixes) > 0 {
		b.WriteString("How to fix:\n")
		for i, fix := range e.Fixes {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, fix)
		}
	}
	return b.String()
}

// WithDetail attaches a diagnostic key/value and returns the same error.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error and returns the same error.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Refuse builds a structured refusal.
func Refuse(code, title, problem, why string, fixes ...string) *AppError {
	return &AppError{
		Code:    code,
		Message: problem,
		Title:   title,
		Why:     why,
		Fixes:   fixes,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
			Title:   appErr.Title,
			Why:     appErr.Why,
			Fixes:   appErr.Fixes,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		clone := *appErr
		clone.Code = code
		return &clone
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := As(err)
	return ok
}

// As returns the outermost AppError in the chain.
func As(err error) (*AppError, bool) {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Configuration refusals
	CodeMissingAttributes  = "CFG_MISSING_ATTRIBUTES"
	CodeInvalidAttribute   = "CFG_INVALID_ATTRIBUTE"
	CodeInvalidColumn      = "CFG_INVALID_COLUMN"
	CodeInvalidMethod      = "CFG_INVALID_METHOD"
	CodeInvalidConfidence  = "CFG_INVALID_CONFIDENCE"
	CodeUnsupportedFeature = "CFG_UNSUPPORTED"

	// Data refusals
	CodeDataValidation       = "DATA_VALIDATION_FAILED"
	CodeDataEmpty            = "DATA_EMPTY"
	CodeDuplicateAlternative = "DATA_DUPLICATE_ALTERNATIVE"
	CodeMissingAlternative   = "DATA_MISSING_ALTERNATIVE"

	// Estimation refusals
	CodeEstimationFailed      = "MODEL_ESTIMATION_FAILED"
	CodeAllMethodsFailed      = "MODEL_ALL_METHODS_FAILED"
	CodePerfectSeparation     = "MODEL_PERFECT_SEPARATION"
	CodeInsufficientVariation = "MODEL_INSUFFICIENT_VARIATION"
	CodeMethodUnavailable     = "MODEL_METHOD_UNAVAILABLE"
	CodeNotImplemented        = "MODEL_NOT_IMPLEMENTED"

	// Simulation and best-worst refusals
	CodeInvalidProduct      = "SIM_INVALID_PRODUCT"
	CodeBestWorstValidation = "BW_VALIDATION_FAILED"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
