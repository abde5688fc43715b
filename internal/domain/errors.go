package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSymbol matches every *InvalidSymbolError via errors.Is.
var ErrInvalidSymbol = errors.New("invalid symbol")

// InvalidSymbolError is a caller error: the symbol is outside the allow-list.
// It is fatal to the subscription only.
type InvalidSymbolError struct {
	Symbol string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("symbol %q is not supported", e.Symbol)
}

func (e *InvalidSymbolError) Is(target error) bool {
	return target == ErrInvalidSymbol
}

// FetchError wraps a failed REST refresh. The previous snapshot stays in place
// and the next scheduled fetch retries.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TransportError wraps a streaming failure. It is recovered by reconnecting.
type TransportError struct {
	Symbol   string
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s via %s: %v", e.Symbol, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DegradedNotice is informational, not an error. It signals that a symbol is
// served by polling instead of streaming.
type DegradedNotice struct {
	Symbol string    `json:"symbol"`
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

func (n DegradedNotice) String() string {
	return fmt.Sprintf("%s degraded since %s: %s", n.Symbol, n.Since.Format(time.RFC3339), n.Reason)
}
