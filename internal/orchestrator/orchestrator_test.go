package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"kol-scoreboard/internal/domain"
	"kol-scoreboard/internal/render"
)

// MockRenderer is a testify mock of render.Renderer.
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, address string) (string, error) {
	args := m.Called(ctx, address)
	return args.String(0), args.Error(1)
}

// funcRenderer adapts a function to render.Renderer.
type funcRenderer func(ctx context.Context, address string) (string, error)

func (f funcRenderer) Render(ctx context.Context, address string) (string, error) {
	return f(ctx, address)
}

const page = `Balance: 10 SOL ($1,500)
Realized PnL (ROI) $20,000 (15%)
Token Winrate 60.0%
Tokens Traded 250
Median Hold Time 15 seconds
$500 500%`

func TestOrchestrator_FetchWalletStats(t *testing.T) {
	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, "wallet1").Return(page, nil).Once()

	var transitions []State
	orch := New(Options{
		Renderer: renderer,
		OnTransition: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	result, err := orch.FetchWalletStats(context.Background(), "wallet1")
	require.NoError(t, err)

	assert.False(t, result.Unavailable)
	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.Metrics.IsInactive)
	assert.Equal(t, int64(250), result.Metrics.TokensTraded)
	assert.InDelta(t, 44.5, result.Score.Total, 1e-9)
	assert.Equal(t, domain.RankB, result.Score.Label)
	assert.Equal(t, []State{StateRendering, StateExtracting, StateScoring, StateDone}, transitions)
	renderer.AssertExpectations(t)
}

func TestOrchestrator_RenderFailureReturnsUnavailableResult(t *testing.T) {
	renderer := new(MockRenderer)
	renderErr := &render.RenderError{Reason: render.ReasonLaunchFailed, Address: "wallet1", Err: errors.New("no chrome")}
	renderer.On("Render", mock.Anything, "wallet1").Return("", renderErr)

	var transitions []State
	orch := New(Options{
		Renderer: renderer,
		OnTransition: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	result, err := orch.FetchWalletStats(context.Background(), "wallet1")

	var failure *ScrapeFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, render.ReasonLaunchFailed, failure.Reason)
	assert.ErrorIs(t, err, render.ErrRender)

	assert.True(t, result.Unavailable)
	assert.Equal(t, StateFailed, result.State)
	assert.True(t, result.Metrics.IsInactive)
	assert.Equal(t, "wallet1", result.Metrics.Address)
	assert.Equal(t, domain.RankUnranked, result.Score.Label)
	assert.Equal(t, []State{StateRendering, StateFailed}, transitions)
}

func TestOrchestrator_BudgetTimeout(t *testing.T) {
	renderer := funcRenderer(func(ctx context.Context, address string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	orch := New(Options{Renderer: renderer, Budget: 50 * time.Millisecond})

	start := time.Now()
	result, err := orch.FetchWalletStats(context.Background(), "wallet1")

	var failure *ScrapeFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, render.ReasonNavigationTimeout, failure.Reason)
	assert.True(t, result.Unavailable)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOrchestrator_CallerCancelDoesNotInterruptScrape(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	renderer := funcRenderer(func(rctx context.Context, address string) (string, error) {
		cancel()
		time.Sleep(20 * time.Millisecond)
		if rctx.Err() != nil {
			return "", rctx.Err()
		}
		return page, nil
	})
	orch := New(Options{Renderer: renderer})

	result, err := orch.FetchWalletStats(ctx, "wallet1")

	require.NoError(t, err)
	assert.Equal(t, StateDone, result.State)
}

func TestOrchestrator_ConcurrentScrapesDoNotSerialize(t *testing.T) {
	const n = 5
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	renderer := funcRenderer(func(ctx context.Context, address string) (string, error) {
		mu.Lock()
		active++
		if active > maxSeen {
			maxSeen = active
		}
		mu.Unlock()

		time.Sleep(100 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return page, nil
	})
	orch := New(Options{Renderer: renderer})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orch.FetchWalletStats(context.Background(), "wallet")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, n, maxSeen)
}

func TestOrchestrator_NoCaching(t *testing.T) {
	renderer := new(MockRenderer)
	renderer.On("Render", mock.Anything, "wallet1").Return(page, nil).Twice()
	orch := New(Options{Renderer: renderer})

	_, err := orch.FetchWalletStats(context.Background(), "wallet1")
	require.NoError(t, err)
	_, err = orch.FetchWalletStats(context.Background(), "wallet1")
	require.NoError(t, err)

	renderer.AssertNumberOfCalls(t, "Render", 2)
}

func TestToFailure_UnknownError(t *testing.T) {
	f := toFailure("w", errors.New("weird"))

	assert.Equal(t, render.ReasonCrashed, f.Reason)
	assert.Contains(t, f.Error(), "crashed")
}
