package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/turbologger/errors"
)

func fast(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return stderrors.New("connection refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	attempts := 0
	cause := stderrors.New("timeout")
	err := Do(context.Background(), fast(3), func(context.Context) error {
		attempts++
		return cause
	})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"fatal", errors.WrapFatal(stderrors.New("bad"), "Test", "Do", "fatal")},
		{"invalid", errors.WrapInvalid(stderrors.New("bad"), "Test", "Do", "invalid")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := Do(context.Background(), fast(5), func(context.Context) error {
				attempts++
				return tt.err
			})
			assert.Equal(t, tt.err, err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(context.Context) error {
		attempts++
		return stderrors.New("unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_AtLeastOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), Config{}, func(context.Context) error {
		attempts++
		return nil
	})
	assert.Equal(t, 1, attempts)
}

func TestConfig_Normalized(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}.normalized()
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)

	assert.Equal(t, 10, Quick().MaxAttempts)
	assert.Equal(t, 30, Persistent().MaxAttempts)
}
