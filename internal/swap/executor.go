// Package swap executes single token swaps for the investment saga.
package swap

import (
	"context"

	"memeetf/internal/domain"
)

// Executor performs one swap. Implementations must be safe for sequential
// reuse; the orchestrator never calls one concurrently for the same run.
type Executor interface {
	Swap(ctx context.Context, req domain.SwapRequest) (*domain.SwapResult, error)
}
