package livequery

import (
	"errors"
	"fmt"

	"github.com/roach88/livefetch/internal/queryir"
)

// ErrNotConfigured is returned by Holder operations that need a controller
// before the first SetQuery.
var ErrNotConfigured = errors.New("live query not configured")

// ErrorCode categorizes live query failures.
type ErrorCode string

const (
	// ErrCodeQueryExecution indicates the store failed to run the query.
	ErrCodeQueryExecution ErrorCode = "QUERY_EXECUTION"

	// ErrCodeConfiguration indicates an unusable spec, such as an unknown
	// entity kind or a filter on an undeclared field.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeDisposed indicates use of a controller after Dispose.
	ErrCodeDisposed ErrorCode = "CONTROLLER_DISPOSED"

	// ErrCodeSubscribe indicates the change subscription could not be made.
	ErrCodeSubscribe ErrorCode = "SUBSCRIBE_FAILED"
)

// QueryExecutionError describes why a controller could not produce results.
// Configuration problems are reported with this type too, at the first
// execute, because building a QuerySpec cannot fail.
type QueryExecutionError struct {
	Code      ErrorCode
	Entity    string
	ContextID string
	Message   string
	Err       error
}

func (e *QueryExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// IsQueryExecutionError reports whether err is a QueryExecutionError of any
// code. Uses errors.As to handle wrapped errors.
func IsQueryExecutionError(err error) bool {
	var qe *QueryExecutionError
	return errors.As(err, &qe)
}

// IsConfigurationError reports whether err stems from an unusable spec.
func IsConfigurationError(err error) bool {
	var qe *QueryExecutionError
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeConfiguration
	}
	return false
}

// IsDisposedError reports whether err came from a disposed controller.
func IsDisposedError(err error) bool {
	var qe *QueryExecutionError
	if errors.As(err, &qe) {
		return qe.Code == ErrCodeDisposed
	}
	return false
}

func isConfigProblem(err error) bool {
	var verr *queryir.ValidationError
	return errors.As(err, &verr) || errors.Is(err, queryir.ErrUnknownEntity)
}

func fetchError(spec queryir.QuerySpec, contextID string, err error) *QueryExecutionError {
	qe := &QueryExecutionError{
		Code:      ErrCodeQueryExecution,
		Entity:    spec.Entity,
		ContextID: contextID,
		Message:   "fetch failed",
		Err:       err,
	}
	if isConfigProblem(err) {
		qe.Code = ErrCodeConfiguration
		qe.Message = "unusable query"
	}
	return qe
}

func subscribeError(spec queryir.QuerySpec, contextID string, err error) *QueryExecutionError {
	qe := &QueryExecutionError{
		Code:      ErrCodeSubscribe,
		Entity:    spec.Entity,
		ContextID: contextID,
		Message:   "subscribe failed",
		Err:       err,
	}
	if isConfigProblem(err) {
		qe.Code = ErrCodeConfiguration
		qe.Message = "unusable query"
	}
	return qe
}
