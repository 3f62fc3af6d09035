package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// RowDelimiter separates the fields of an encoded chat row.
const RowDelimiter = "^&^"

// TimestampLayout is the format of Row.Timestamp (day-month-year, 12 hour clock).
const TimestampLayout = "02-01-2006 03:04:05"

var (
	// ErrInvalidRow is returned when a row cannot be constructed.
	ErrInvalidRow = errors.New("invalid chat row")
	// ErrMalformedRow is returned when an encoded row cannot be decoded.
	ErrMalformedRow = errors.New("malformed chat row")
)

// Row is one chat line. An empty Body means the row carries no text.
type Row struct {
	Sender    string
	Body      string
	Timestamp string
}

// NewRow creates a row stamped with the current time.
func NewRow(sender, body string) (Row, error) {
	return NewRowAt(sender, body, time.Now())
}

// NewRowAt creates a row stamped with t.
func NewRowAt(sender, body string, t time.Time) (Row, error) {
	row := Row{Sender: sender, Body: body, Timestamp: t.Format(TimestampLayout)}
	if err := row.Validate(); err != nil {
		return Row{}, err
	}
	return row, nil
}

// Validate checks that the row survives an encode/decode round trip.
func (r Row) Validate() error {
	if r.Sender == "" {
		return fmt.Errorf("%w: empty sender", ErrInvalidRow)
	}
	if strings.Contains(r.Sender, RowDelimiter) {
		return fmt.Errorf("%w: sender contains %q", ErrInvalidRow, RowDelimiter)
	}
	if strings.Contains(r.Body, RowDelimiter) {
		return fmt.Errorf("%w: body contains %q", ErrInvalidRow, RowDelimiter)
	}
	return nil
}

// Encode returns the wire form of the row.
func (r Row) Encode() string {
	return r.Sender + RowDelimiter + r.Body + RowDelimiter + r.Timestamp
}

// EncodeRow returns the wire form of row.
func EncodeRow(row Row) string {
	return row.Encode()
}

// DecodeRow parses an encoded row. The timestamp receives everything after
// the second delimiter.
func DecodeRow(s string) (Row, error) {
	parts := strings.SplitN(s, RowDelimiter, 3)
	if len(parts) != 3 {
		return Row{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedRow, len(parts))
	}
	if parts[0] == "" {
		return Row{}, fmt.Errorf("%w: empty sender", ErrMalformedRow)
	}
	return Row{Sender: parts[0], Body: parts[1], Timestamp: parts[2]}, nil
}
