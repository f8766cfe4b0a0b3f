package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrInvalidState      = errors.New("invalid position state")
	ErrMissingPrice      = errors.New("missing price")
	ErrMalformedPosition = errors.New("malformed position")
	ErrInvalidPrice      = errors.New("invalid price")
)

// InvalidStateError reports an operation called on a position whose
// lifecycle state does not allow it.
type InvalidStateError struct {
	Ticker string
	Op     string
	State  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: position %s is %s", e.Op, e.Ticker, e.State)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// MissingPriceError names every open ticker without a current price.
type MissingPriceError struct {
	Tickers []string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing current price for open position(s): %s", strings.Join(e.Tickers, ", "))
}

func (e *MissingPriceError) Unwrap() error { return ErrMissingPrice }

// MalformedPositionError reports a record that breaks a position invariant.
// Index is the position's place in its batch, or -1 when validated alone.
type MalformedPositionError struct {
	Index  int
	Ticker string
	Reason string
}

func (e *MalformedPositionError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("position #%d (%s): %s", e.Index+1, e.Ticker, e.Reason)
	}
	return fmt.Sprintf("position %s: %s", e.Ticker, e.Reason)
}

func (e *MalformedPositionError) Unwrap() error { return ErrMalformedPosition }

// InvalidPriceError reports a negative entry in a price map.
type InvalidPriceError struct {
	Ticker string
	Price  Amount
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price for %s must be non-negative, got %s", e.Ticker, e.Price)
}

func (e *InvalidPriceError) Unwrap() error { return ErrInvalidPrice }

// Tickers extracts the offending tickers from any engine error, including
// joined ones, for user-facing diagnostics.
func Tickers(err error) []string {
	var out []string
	seen := map[string]bool{}
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
			return
		case *InvalidStateError:
			add(e.Ticker)
		case *MissingPriceError:
			for _, t := range e.Tickers {
				add(t)
			}
		case *MalformedPositionError:
			add(e.Ticker)
		case *InvalidPriceError:
			add(e.Ticker)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(e.Unwrap())
		}
	}
	walk(err)
	return out
}
