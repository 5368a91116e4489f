package services

import (
	"context"
	"time"

	"github.com/harborview/civicwatch/internal/models"
	"github.com/harborview/civicwatch/internal/store"
)

// Login attempt guard thresholds. Fixed values, not tunables.
const (
	lockoutThreshold      = 5                // consecutive failures before a hard lockout
	lockoutUnitDuration   = 60 * time.Second // lockout grows by this per failure
	lockoutMaxDuration    = 3600 * time.Second
	delayThreshold        = 3 // failures beyond this incur a progressive delay
	delayMaxSeconds       = 30
	verificationThreshold = 3 // failures at which the human-verification gate engages

	attemptHistoryLimit = 20
	attemptRetention    = time.Hour
)

// LoginGuard tracks login attempts per (identity, origin) key and derives the
// layered brakes: progressive delay, hard lockout, and the
// human-verification gate. All state lives in the injected tracker store.
type LoginGuard struct {
	store store.TrackerStore
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewLoginGuard creates a new LoginGuard
func NewLoginGuard(trackerStore store.TrackerStore) *LoginGuard {
	return &LoginGuard{
		store: trackerStore,
		now:   time.Now,
		sleep: sleepFor,
	}
}

// SetClock overrides the guard's time source. Test hook.
func (g *LoginGuard) SetClock(now func() time.Time) {
	g.now = now
}

// SetSleeper overrides the guard's delay primitive. Test hook.
func (g *LoginGuard) SetSleeper(sleep func(ctx context.Context, d time.Duration)) {
	g.sleep = sleep
}

func sleepFor(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// RecordAttempt records one attempt outcome for the key. A success resets
// the consecutive-failure count; a failure increments it and stamps the
// failure time. The attempt history is bounded.
func (g *LoginGuard) RecordAttempt(ctx context.Context, identity, ipAddress string, success bool, failureReason string) (*models.LoginAttemptRecord, error) {
	at := g.now()
	return g.store.UpdateAttempts(ctx, identity, ipAddress, attemptRetention, func(rec *models.LoginAttemptRecord) {
		rec.Identity = identity
		rec.IPAddress = ipAddress
		rec.Attempts = append(rec.Attempts, models.AttemptOutcome{
			At:            at,
			Success:       success,
			FailureReason: failureReason,
		})
		if len(rec.Attempts) > attemptHistoryLimit {
			rec.Attempts = rec.Attempts[len(rec.Attempts)-attemptHistoryLimit:]
		}

		if success {
			rec.ConsecutiveFailures = 0
		} else {
			rec.ConsecutiveFailures++
			rec.LastFailureAt = at
		}
	})
}

// CheckLock reports whether the key is locked out and, if so, for how much
// longer. The lockout duration grows with the failure count, capped at an
// hour, measured from the most recent failure. Expired lockouts self-clear:
// no unlock action exists.
func (g *LoginGuard) CheckLock(ctx context.Context, identity, ipAddress string) (bool, time.Duration, error) {
	rec, err := g.store.GetAttempts(ctx, identity, ipAddress)
	if err != nil {
		return false, 0, err
	}
	if rec == nil || rec.ConsecutiveFailures < lockoutThreshold {
		return false, 0, nil
	}

	duration := time.Duration(rec.ConsecutiveFailures) * lockoutUnitDuration
	if duration > lockoutMaxDuration {
		duration = lockoutMaxDuration
	}

	remaining := rec.LastFailureAt.Add(duration).Sub(g.now())
	if remaining <= 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

// DelayFor returns the progressive delay owed by the key: a soft brake that
// applies on top of any lockout once failures pass the threshold.
func (g *LoginGuard) DelayFor(ctx context.Context, identity, ipAddress string) (time.Duration, error) {
	rec, err := g.store.GetAttempts(ctx, identity, ipAddress)
	if err != nil {
		return 0, err
	}
	if rec == nil || rec.ConsecutiveFailures <= delayThreshold {
		return 0, nil
	}

	seconds := 1 << (rec.ConsecutiveFailures - delayThreshold)
	if seconds > delayMaxSeconds {
		seconds = delayMaxSeconds
	}
	return time.Duration(seconds) * time.Second, nil
}

// ApplyDelay stalls the caller by the key's current progressive delay.
// Returns the delay applied.
func (g *LoginGuard) ApplyDelay(ctx context.Context, identity, ipAddress string) (time.Duration, error) {
	delay, err := g.DelayFor(ctx, identity, ipAddress)
	if err != nil {
		return 0, err
	}
	if delay > 0 {
		g.sleep(ctx, delay)
	}
	return delay, nil
}

// RequiresHumanVerification reports whether the key must present a
// verification code with its next attempt. Absence of the code is a
// rejection, never a silent pass.
func (g *LoginGuard) RequiresHumanVerification(ctx context.Context, identity, ipAddress string) (bool, error) {
	rec, err := g.store.GetAttempts(ctx, identity, ipAddress)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.ConsecutiveFailures >= verificationThreshold, nil
}
