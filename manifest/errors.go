// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import "strings"

// FieldError is one violation found while validating a manifest.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError batches every FieldError found during Validate. It is
// never constructed with a single violation mid-scan and returned
// early — the whole document is checked first so an author sees every
// problem in one pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "manifest: no validation errors"
	}

	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, field := range e.Fields {
		b.WriteString("\n  ")
		b.WriteString(field.Field)
		b.WriteString(": ")
		b.WriteString(field.Reason)
	}
	return b.String()
}

// add appends a violation.
func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// Unwrap returns each FieldError as its own error, so errors.Is/errors.As
// can walk individual field violations the same way they walk an
// errors.Join batch.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, len(e.Fields))
	for i, field := range e.Fields {
		errs[i] = fieldError(field)
	}
	return errs
}

// fieldError adapts a FieldError to the error interface for Unwrap.
type fieldError FieldError

func (f fieldError) Error() string {
	return f.Field + ": " + f.Reason
}
