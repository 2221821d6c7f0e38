package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/ir"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGate_ResolveOutOfOrder(t *testing.T) {
	ctx := testContext(t)
	g := NewGate[string]()

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := g.Enter(ctx, "check", ir.Values{}, nil)
			if err == nil {
				results <- v
			}
		}()
	}

	first, err := g.Await(ctx, "check", 1)
	require.NoError(t, err)
	second, err := g.Await(ctx, "check", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, 2, second.Index)

	second.Resolve("second")
	assert.Equal(t, "second", <-results)
	first.Resolve("first")
	assert.Equal(t, "first", <-results)
	assert.Equal(t, 2, g.Count("check"))
}

func TestGate_Fail(t *testing.T) {
	ctx := testContext(t)
	g := NewGate[int]()
	boom := errors.New("boom")

	errs := make(chan error, 1)
	go func() {
		_, err := g.Enter(ctx, "submit", nil, nil)
		errs <- err
	}()

	call, err := g.Await(ctx, "submit", 1)
	require.NoError(t, err)
	call.Fail(boom)
	call.Resolve(1)
	assert.ErrorIs(t, <-errs, boom)
}

func TestGate_RecordsValues(t *testing.T) {
	ctx := testContext(t)
	g := NewGate[bool]()

	go func() {
		_, _ = g.Enter(ctx, "v", ir.Values{"name": ir.IRString("ada")}, nil)
	}()

	call, err := g.Await(ctx, "v", 1)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("ada"), call.Values["name"])
	call.Resolve(true)
}

func TestGate_AwaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGate[bool]()
	_, err := g.Await(ctx, "never", 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.Count("never"))
}

func TestGate_EnterHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGate[bool]()

	errs := make(chan error, 1)
	go func() {
		_, err := g.Enter(ctx, "slow", nil, nil)
		errs <- err
	}()

	_, err := g.Await(testContext(t), "slow", 1)
	require.NoError(t, err)
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)
}
