package investment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memeetf/internal/domain"
)

type blockingExecutor struct{}

func (blockingExecutor) Swap(ctx context.Context, _ domain.SwapRequest) (*domain.SwapResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPlan(t *testing.T) {
	plan, err := Plan(dec("1"), []domain.Constituent{
		{Mint: usdcMint, Weight: 33.33},
		{Mint: bonkMint, Weight: 33.33},
		{Mint: wifMint, Weight: 33.34},
	})
	require.NoError(t, err)
	require.Len(t, plan, 3)

	assert.Equal(t, uint64(333_300_000), plan[0].Amount)
	assert.Equal(t, uint64(333_400_000), plan[2].Amount)
	for i, step := range plan {
		assert.Equal(t, i, step.Position)
		assert.Equal(t, domain.WSOLMint, step.InputMint)
	}
}

func TestPlan_Rejects(t *testing.T) {
	_, err := Plan(dec("1"), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Plan(dec("0.000000001"), []domain.Constituent{{Mint: usdcMint, Weight: 50}, {Mint: bonkMint, Weight: 50}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOrchestrator_Run(t *testing.T) {
	exec := &scriptedExecutor{failOn: map[int]bool{}}
	o := NewOrchestrator(OrchestratorOptions{Executor: exec})

	res, err := o.Run(context.Background(), dec("1"), []domain.Constituent{
		{Mint: usdcMint, Weight: 50},
		{Mint: bonkMint, Weight: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, -1, res.FailedIndex)
	require.Len(t, res.Completed, 2)
	assert.Equal(t, 1, res.Completed[1].Position)
	assert.Equal(t, float64(50), res.Completed[1].Weight)
	assert.Equal(t, DefaultSlippageBps, exec.calls[0].SlippageBps)
}

func TestOrchestrator_TimeoutIsFailure(t *testing.T) {
	o := NewOrchestrator(OrchestratorOptions{
		Executor:    blockingExecutor{},
		SwapTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	res, err := o.Run(context.Background(), dec("1"), []domain.Constituent{{Mint: usdcMint, Weight: 100}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExternalCall)
	assert.Equal(t, 0, res.FailedIndex)
	assert.Empty(t, res.Completed)
	assert.Less(t, time.Since(start), 2*time.Second)
}
