package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnknownReference  = errors.New("unknown reference")
	ErrOrderNotFound     = errors.New("order not found")
	ErrWorkerNotFound    = errors.New("worker not found")
	ErrCostingRequired   = fmt.Errorf("%w: costing required for delivery", ErrValidation)
	ErrSnapshotImbalance = errors.New("snapshot balances do not match transaction log")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
