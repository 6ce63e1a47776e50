package httpx

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestNewCircuitBreaker(t *testing.T) {
	breaker := NewCircuitBreaker("printer", 30*time.Second, 3)

	wrapper, ok := breaker.(*circuitBreakerWrapper)
	assert.True(t, ok)
	assert.Equal(t, "printer", wrapper.breaker.Name())
	assert.Equal(t, gobreaker.StateClosed, wrapper.breaker.State())
}

func TestCircuitBreakerWrapper_Execute_Success(t *testing.T) {
	breaker := NewCircuitBreaker("success-test", 30*time.Second, 3)

	assert.NoError(t, breaker.Execute(func() error { return nil }))
}

func TestCircuitBreakerWrapper_Execute_ErrorWrapping(t *testing.T) {
	breaker := NewCircuitBreaker("error-wrap-test", 30*time.Second, 3)
	testError := errors.New("original error")

	err := breaker.Execute(func() error { return testError })

	assert.Error(t, err)
	assert.ErrorIs(t, err, testError)
	assert.Contains(t, err.Error(), "breaker (error-wrap-test)")
	assert.False(t, IsOpen(err))
}

func TestCircuitBreakerWrapper_Execute_CircuitOpen(t *testing.T) {
	breaker := NewCircuitBreaker("circuit-open-test", time.Minute, 2)
	calls := 0
	failing := func() error {
		calls++
		return errors.New("connection refused")
	}

	assert.Error(t, breaker.Execute(failing))
	assert.Error(t, breaker.Execute(failing))

	err := breaker.Execute(failing)
	assert.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.Equal(t, 2, calls, "an open breaker must not call through")
}

func TestCircuitBreakerWrapper_Execute_CircuitRecovery(t *testing.T) {
	breaker := NewCircuitBreaker("recovery-test", 50*time.Millisecond, 1)
	wrapper, _ := breaker.(*circuitBreakerWrapper) //nolint:errcheck

	assert.Error(t, breaker.Execute(func() error { return errors.New("trigger failure") }))
	assert.Equal(t, gobreaker.StateOpen, wrapper.breaker.State())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, wrapper.breaker.State())

	assert.NoError(t, breaker.Execute(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, wrapper.breaker.State())
}

func TestCircuitBreakerWrapper_Execute_Counts(t *testing.T) {
	breaker := NewCircuitBreaker("counts-test", 30*time.Second, 3)
	wrapper, _ := breaker.(*circuitBreakerWrapper) //nolint:errcheck

	_ = breaker.Execute(func() error { return nil })                //nolint:errcheck
	_ = breaker.Execute(func() error { return errors.New("fail") }) //nolint:errcheck
	_ = breaker.Execute(func() error { return nil })                //nolint:errcheck

	counts := wrapper.breaker.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(2), counts.TotalSuccesses)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveFailures)
}
