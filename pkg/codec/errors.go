package codec

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	// ErrUnsupportedType indicates a type tag or Go slice type outside the type table.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrMalformedHeader indicates a structural header that could not be parsed.
	ErrMalformedHeader = errors.New("malformed header")

	// ErrTruncatedBuffer indicates a column buffer shorter than its declared element count.
	ErrTruncatedBuffer = errors.New("truncated buffer")

	// ErrDatasetRange indicates a dataset window outside the decoded batch.
	ErrDatasetRange = errors.New("dataset range out of bounds")

	// ErrStringOverflow indicates a string longer than its column capacity.
	ErrStringOverflow = errors.New("string exceeds column width")

	// ErrInvalidBatch indicates columns that violate the record batch invariants.
	ErrInvalidBatch = errors.New("invalid record batch")
)

// UnsupportedTypeError reports an unmapped tag, wire string or value type.
type UnsupportedTypeError struct {
	Tag    TypeTag
	GoType string // set when the value slice type does not match the tag
}

func (e *UnsupportedTypeError) Error() string {
	if e.GoType != "" {
		return fmt.Sprintf("unsupported type: %s values for %s column", e.GoType, e.Tag)
	}
	return fmt.Sprintf("unsupported type: kind=%s width=%d", e.Tag.Kind, e.Tag.Width)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// MalformedHeaderError reports a header that is structurally unparseable.
type MalformedHeaderError struct {
	Offset int
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("malformed header at offset %d: %s", e.Offset, e.Reason)
}

func (e *MalformedHeaderError) Is(target error) bool { return target == ErrMalformedHeader }

func malformed(offset int, format string, args ...interface{}) error {
	return &MalformedHeaderError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// TruncatedBufferError reports a buffer shorter than count*width bytes.
type TruncatedBufferError struct {
	Column string
	Need   int
	Have   int
}

func (e *TruncatedBufferError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("truncated buffer for column %s: need %d bytes, have %d", e.Column, e.Need, e.Have)
	}
	return fmt.Sprintf("truncated buffer: need %d bytes, have %d", e.Need, e.Have)
}

func (e *TruncatedBufferError) Is(target error) bool { return target == ErrTruncatedBuffer }

// DatasetRangeError reports a start/length window that does not fit the batch.
type DatasetRangeError struct {
	Key    string
	Start  int
	Length int
	Total  int
}

func (e *DatasetRangeError) Error() string {
	return fmt.Sprintf("dataset %s range start %d length %d exceeds batch length %d",
		e.Key, e.Start, e.Length, e.Total)
}

func (e *DatasetRangeError) Is(target error) bool { return target == ErrDatasetRange }

// StringOverflowError reports a value too long for a fixed-width string column.
type StringOverflowError struct {
	Index int
	Chars int
	Max   int
}

func (e *StringOverflowError) Error() string {
	return fmt.Sprintf("string at index %d has %d characters, column holds %d", e.Index, e.Chars, e.Max)
}

func (e *StringOverflowError) Is(target error) bool { return target == ErrStringOverflow }

// StageError wraps a decode failure with the stage it happened in.
type StageError struct {
	Stage  string // "header", "column" or "slice"
	Column string
	Err    error
}

func (e *StageError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Column, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
