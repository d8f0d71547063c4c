package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLockoutConfig() Config {
	cfg := DefaultConfig()
	cfg.LockoutWindow = 10 * time.Minute
	cfg.LockoutShortThreshold = 3
	cfg.LockoutShortDuration = time.Minute
	cfg.LockoutLongThreshold = 5
	cfg.LockoutLongDuration = 5 * time.Minute
	cfg.LockoutSevereThreshold = 0
	return cfg
}

func TestLockout_ProgressiveSteps(t *testing.T) {
	l := newLockout(testLockoutConfig())
	t0 := time.Unix(1_700_000_000, 0)

	for i := range 2 {
		l.fail("ann@example.com", t0.Add(time.Duration(i)*time.Second))
	}
	locked, _ := l.check("ann@example.com", t0.Add(2*time.Second))
	assert.False(t, locked, "below the first threshold")

	l.fail("ann@example.com", t0.Add(2*time.Second))
	locked, retry := l.check("ann@example.com", t0.Add(32*time.Second))
	require.True(t, locked)
	assert.Equal(t, 30*time.Second, retry)

	locked, _ = l.check("ann@example.com", t0.Add(62*time.Second))
	assert.False(t, locked, "short lock expired")

	l.fail("ann@example.com", t0.Add(70*time.Second))
	l.fail("ann@example.com", t0.Add(80*time.Second))
	locked, retry = l.check("ann@example.com", t0.Add(140*time.Second))
	require.True(t, locked, "long step outlasts the short one")
	assert.Equal(t, 4*time.Minute, retry)

	locked, _ = l.check("bob@example.com", t0.Add(140*time.Second))
	assert.False(t, locked, "keys are independent")
}

func TestLockout_WindowForgetsAndResetClears(t *testing.T) {
	l := newLockout(testLockoutConfig())
	t0 := time.Unix(1_700_000_000, 0)

	for i := range 3 {
		l.fail("k", t0.Add(time.Duration(i)*time.Second))
	}
	locked, _ := l.check("k", t0.Add(10*time.Second))
	require.True(t, locked)

	l.reset("k")
	locked, _ = l.check("k", t0.Add(10*time.Second))
	assert.False(t, locked)

	for i := range 3 {
		l.fail("k", t0.Add(time.Duration(i)*time.Second))
	}
	locked, _ = l.check("k", t0.Add(11*time.Minute))
	assert.False(t, locked)
	assert.Empty(t, l.failures, "expired entries are pruned")
}

func TestLockout_StepsSortedBySeverity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockoutShortThreshold = 50
	steps := cfg.lockoutSteps()
	for i := 1; i < len(steps); i++ {
		assert.GreaterOrEqual(t, steps[i-1].threshold, steps[i].threshold)
	}
}

func TestLogin_LocksOutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "ann@example.com", "ann")

	for range DefaultConfig().LockoutShortThreshold {
		_, err := f.svc.Login(ctx, "ann@example.com", "wrong password!", false)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.svc.Login(ctx, "ANN@example.com", testPassword, false)
	require.ErrorIs(t, err, ErrLockedOut, "correct password is refused while locked")
	assert.True(t, IsRejection(err))

	f.now = f.now.Add(DefaultConfig().LockoutShortDuration)
	res, err := f.svc.Login(ctx, "ann@example.com", testPassword, false)
	require.NoError(t, err)
	assert.Equal(t, "ann", res.Name)

	// Success clears the history.
	_, err = f.svc.Login(ctx, "ann@example.com", "wrong password!", false)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ann@example.com", testPassword, false)
	require.NoError(t, err)
}

func TestLogin_UnknownEmailFailuresAlsoCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for range DefaultConfig().LockoutShortThreshold {
		_, err := f.svc.Login(ctx, "ghost@example.com", testPassword, false)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := f.svc.Login(ctx, "ghost@example.com", testPassword, false)
	assert.ErrorIs(t, err, ErrLockedOut)
}
