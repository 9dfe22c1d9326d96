package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ErrSimulated — sentinel для проверки путей обработки ошибок.
var ErrSimulated = errors.New("simulated error for testing")

// ContextWithTimeout создаёт context с timeout, отменяемый при завершении теста.
func ContextWithTimeout(tb testing.TB, d time.Duration) context.Context {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	tb.Cleanup(cancel)
	return ctx
}
