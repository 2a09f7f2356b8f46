// Package errors provides structured error types for the custom markup engine.
//
// Every failure the engine can observe belongs to one Class. Scanner and
// decoder failures never escape a render pass; they become fallback markers.
// Fetch failures degrade a single occurrence, mount failures are reported as
// pass-level warnings, and teardown failures are collected.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorClass categorizes errors for filtering and reporting.
type ErrorClass string

const (
	ClassUnknownTag ErrorClass = "unknown-tag" // Name absent from the registry
	ClassAttribute  ErrorClass = "attribute"   // Missing or malformed attribute
	ClassFetch      ErrorClass = "fetch"       // Data dependency failed
	ClassMount      ErrorClass = "mount"       // Unit construction failed
	ClassTeardown   ErrorClass = "teardown"    // Unit release failed
)

// Sentinels usable with errors.Is.
var (
	ErrUnknownTag = stderrors.New("unknown tag")
	ErrAttribute  = stderrors.New("attribute validation failed")
	ErrFetch      = stderrors.New("fetch failed")
	ErrMount      = stderrors.New("mount failed")
	ErrTeardown   = stderrors.New("teardown failed")
)

// MarkupError is the common shape of all engine errors.
type MarkupError struct {
	Class   ErrorClass `json:"class"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
	Tag     string     `json:"tag,omitempty"`
	Hints   []string   `json:"hints,omitempty"`
	Line    int        `json:"line,omitempty"`
	Column  int        `json:"column,omitempty"`
	Cause   error      `json:"-"`
}

// Error implements the error interface.
func (e *MarkupError) Error() string {
	var sb strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d, column %d: ", e.Line, e.Column)
	}
	if e.Tag != "" {
		fmt.Fprintf(&sb, "<%s>: ", e.Tag)
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	for _, hint := range e.Hints {
		sb.WriteString("\n  ")
		sb.WriteString(hint)
	}
	return sb.String()
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *MarkupError) Unwrap() []error {
	errs := []error{sentinelFor(e.Class)}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// WithPosition returns a copy of the error with line and column set.
func (e *MarkupError) WithPosition(line, column int) *MarkupError {
	copy := *e
	copy.Line = line
	copy.Column = column
	return &copy
}

func sentinelFor(class ErrorClass) error {
	switch class {
	case ClassUnknownTag:
		return ErrUnknownTag
	case ClassAttribute:
		return ErrAttribute
	case ClassFetch:
		return ErrFetch
	case ClassMount:
		return ErrMount
	default:
		return ErrTeardown
	}
}

// UnknownTag reports a tag name the registry does not know.
func UnknownTag(name string) *MarkupError {
	return &MarkupError{
		Class:   ClassUnknownTag,
		Code:    "TAG-0001",
		Message: fmt.Sprintf("unknown tag %q", name),
		Tag:     name,
	}
}

// MissingAttribute reports a required attribute that is absent.
func MissingAttribute(tag, key string) *MarkupError {
	return &MarkupError{
		Class:   ClassAttribute,
		Code:    "ATTR-0001",
		Message: fmt.Sprintf("missing required attribute %q", key),
		Tag:     tag,
		Hints:   []string{fmt.Sprintf(`add %s="..." to the tag`, key)},
	}
}

// BadAttributeType reports an attribute whose value cannot be coerced.
func BadAttributeType(tag, key, want string, cause error) *MarkupError {
	return &MarkupError{
		Class:   ClassAttribute,
		Code:    "ATTR-0002",
		Message: fmt.Sprintf("attribute %q is not a valid %s", key, want),
		Tag:     tag,
		Cause:   cause,
	}
}

// Fetch wraps a data-access failure for one occurrence.
func Fetch(tag string, cause error) *MarkupError {
	return &MarkupError{
		Class:   ClassFetch,
		Code:    "FETCH-0001",
		Message: "data fetch failed",
		Tag:     tag,
		Cause:   cause,
	}
}

// Mount wraps a unit construction failure.
func Mount(tag string, cause error) *MarkupError {
	return &MarkupError{
		Class:   ClassMount,
		Code:    "MOUNT-0001",
		Message: "unit construction failed",
		Tag:     tag,
		Cause:   cause,
	}
}

// Teardown wraps a failure while releasing a mounted unit.
func Teardown(tag string, cause error) *MarkupError {
	return &MarkupError{
		Class:   ClassTeardown,
		Code:    "TEARDOWN-0001",
		Message: "unit release failed",
		Tag:     tag,
		Cause:   cause,
	}
}

// ClassOf returns the class of err, or "" when err is not a MarkupError.
func ClassOf(err error) ErrorClass {
	var me *MarkupError
	if stderrors.As(err, &me) {
		return me.Class
	}
	return ""
}
