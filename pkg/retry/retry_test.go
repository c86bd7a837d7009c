package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestExecutor_ExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	rec := &recorder{}
	exec := New(3, 2*time.Second, zaptest.NewLogger(t)).WithSleep(rec.sleep)

	calls := 0
	var last error
	err := exec.Do(context.Background(), func(context.Context) error {
		calls++
		last = synerrors.Newf(synerrors.ErrorTypeTransport, "attempt %d", calls)
		return last
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, last, err, "final error must be returned unwrapped")
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestExecutor_PlainErrorsAreRetried(t *testing.T) {
	rec := &recorder{}
	exec := New(3, time.Millisecond, nil).WithSleep(rec.sleep)
	sentinel := errors.New("boom")

	calls := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})

	assert.Equal(t, 3, calls)
	assert.Same(t, sentinel, err)
}

func TestExecutor_SucceedsAfterFailures(t *testing.T) {
	rec := &recorder{}
	exec := New(3, time.Second, nil).WithSleep(rec.sleep)

	calls := 0
	v, err := Value(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, synerrors.New(synerrors.ErrorTypeTransport, "flaky")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestExecutor_PermanentErrorNotRetried(t *testing.T) {
	rec := &recorder{}
	exec := New(3, time.Second, nil).WithSleep(rec.sleep)
	authErr := synerrors.New(synerrors.ErrorTypeAuthentication, "bad token")

	calls := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		calls++
		return authErr
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, authErr, err)
	assert.Empty(t, rec.delays)
}

func TestExecutor_CancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := New(5, time.Hour, nil)

	calls := 0
	opErr := errors.New("down")
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, func(context.Context) error {
			calls++
			return opErr
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Same(t, opErr, err)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not observe cancellation")
	}
}

func TestExecutor_OnRetryHook(t *testing.T) {
	rec := &recorder{}
	exec := New(2, 10*time.Millisecond, nil).WithSleep(rec.sleep)

	var attempts []int
	exec.OnRetry = func(attempt int, _ time.Duration, _ error) {
		attempts = append(attempts, attempt)
	}

	_ = exec.Do(context.Background(), func(context.Context) error { return errors.New("x") })
	assert.Equal(t, []int{1}, attempts)
}

func TestNew_ClampsAttempts(t *testing.T) {
	exec := New(0, time.Second, nil)
	assert.Equal(t, 1, exec.MaxAttempts)
	assert.Equal(t, 3*time.Second, exec.Delay(3))
}
