// Package tberr defines the unified error taxonomy shared by every
// component of the engine. Components return one of these sentinels
// (wrapped with context via fmt.Errorf's %w) rather than ad-hoc errors,
// so callers and the stdio RPC surface can branch on kind with errors.Is
// and errors.As.
package tberr

import (
	"errors"
	"strconv"
)

// Kind identifies one of the taxonomy's error categories.
type Kind string

const (
	KindIOFailure            Kind = "IOFailure"
	KindConfigError          Kind = "ConfigError"
	KindConfigDrift          Kind = "ConfigDrift"
	KindDatabaseError        Kind = "DatabaseError"
	KindDuplicateHash        Kind = "DuplicateHash"
	KindFileNotFound         Kind = "FileNotFound"
	KindInvalidQuery         Kind = "InvalidQuery"
	KindMetaExtractionFailed Kind = "MetaExtractionFailure"
	KindAliasCycle           Kind = "AliasCycle"
	KindIntegrityDrift       Kind = "IntegrityDrift"
	KindCancelled            Kind = "Cancelled"
)

// Sentinel errors for the base taxonomy. Use errors.Is against these for
// the cases that carry no extra fields; use the richer *Error types below
// (InvalidQueryError, ConfigDriftError, DuplicateHashError) when the
// caller needs the attached detail.
var (
	ErrIOFailure     = errors.New("io failure")
	ErrConfigError   = errors.New("configuration error")
	ErrDatabaseError = errors.New("database error")
	ErrFileNotFound  = errors.New("file not found")
	ErrMetaExtract   = errors.New("metadata extraction failed")
	ErrAliasCycle    = errors.New("alias merge would form a cycle")
	ErrIntegrityDrift = errors.New("integrity drift detected")
	ErrCancelled     = errors.New("operation cancelled")
)

// DuplicateHashError reports that initial_hash already exists in the store.
type DuplicateHashError struct {
	Hash string
}

func (e *DuplicateHashError) Error() string { return "duplicate hash: " + e.Hash }
func (e *DuplicateHashError) Kind() Kind     { return KindDuplicateHash }

// InvalidQueryError reports a DSL parse failure at a specific position.
type InvalidQueryError struct {
	Query    string
	Position int
	Reason   string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query at " + strconv.Itoa(e.Position) + ": " + e.Reason
}
func (e *InvalidQueryError) Kind() Kind { return KindInvalidQuery }

// ConfigDriftError reports that a configured value disagrees with what is
// recorded in system_config.
type ConfigDriftError struct {
	Key        string
	Stored     string
	Configured string
}

func (e *ConfigDriftError) Error() string {
	return "config drift on " + e.Key + ": stored=" + e.Stored + " configured=" + e.Configured
}
func (e *ConfigDriftError) Kind() Kind { return KindConfigDrift }

// IOFailureError carries the filesystem path involved in an IOFailure.
type IOFailureError struct {
	Path string
	Err  error
}

func (e *IOFailureError) Error() string { return "io failure at " + e.Path + ": " + e.Err.Error() }
func (e *IOFailureError) Unwrap() error { return e.Err }
func (e *IOFailureError) Kind() Kind     { return KindIOFailure }

// Coder is implemented by every richer error type above so the RPC layer
// can surface error.code matching the taxonomy name.
type Coder interface {
	Kind() Kind
}

// CodeOf resolves the taxonomy Kind for an error, falling back to the base
// sentinels and finally KindDatabaseError for anything unrecognized.
func CodeOf(err error) Kind {
	var c Coder
	if as(err, &c) {
		return c.Kind()
	}
	switch {
	case errors.Is(err, ErrFileNotFound):
		return KindFileNotFound
	case errors.Is(err, ErrAliasCycle):
		return KindAliasCycle
	case errors.Is(err, ErrIntegrityDrift):
		return KindIntegrityDrift
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrConfigError):
		return KindConfigError
	case errors.Is(err, ErrMetaExtract):
		return KindMetaExtractionFailed
	case errors.Is(err, ErrIOFailure):
		return KindIOFailure
	default:
		return KindDatabaseError
	}
}

func as(err error, target any) bool {
	return errors.As(err, target)
}
