package lead

import (
	"context"
	"fmt"
)

// Source fetches the current candidate list from the external spreadsheet.
type Source interface {
	Fetch(ctx context.Context) ([]Lead, error)
}

// FetchError wraps a lead source failure. Fetch failures end the cycle early
// with zero leads processed; they are counted, never fatal.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("lead fetch failed (%s): %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
