// Package policy evaluates booking requests against the configured temporal
// constraints. Every check is a pure function of its arguments: the caller
// supplies the clock reading, so tests stay deterministic.
package policy

import (
	"fmt"
	"time"

	"zapisnik/internal/models"
	"zapisnik/internal/timeutil"
)

// CheckNotice rejects a booking that starts sooner than minNotice from now.
// A start exactly at now+minNotice is admitted. Nil means no constraint.
func CheckNotice(now, bookingStart time.Time, minNotice *time.Duration) *models.Rejection {
	if minNotice == nil {
		return nil
	}
	if bookingStart.Sub(now) < *minNotice {
		return models.NewRejection(models.ReasonNotice,
			fmt.Sprintf("booking starts less than %s from now", minNotice))
	}
	return nil
}

// CheckAdvance rejects a booking that starts further than maxAdvance from
// now. Nil means no constraint.
func CheckAdvance(now, bookingStart time.Time, maxAdvance *time.Duration) *models.Rejection {
	if maxAdvance == nil {
		return nil
	}
	if bookingStart.Sub(now) > *maxAdvance {
		return models.NewRejection(models.ReasonAdvance,
			fmt.Sprintf("booking starts more than %s from now", maxAdvance))
	}
	return nil
}

// CheckCancellationWindow rejects a cancellation attempted closer to the
// booking start than notice allows. Evaluated only for non-administrator
// cancellations; nil means no constraint.
func CheckCancellationWindow(now, bookingStart time.Time, notice *time.Duration) *models.Rejection {
	if notice == nil {
		return nil
	}
	if bookingStart.Sub(now) < *notice {
		return models.NewRejection(models.ReasonCancellationNotice,
			fmt.Sprintf("cancellation requires %s notice", notice))
	}
	return nil
}

// CheckWithinAvailability rejects a requested window that is not fully
// contained in the day's available window.
func CheckWithinAvailability(reqStart, reqEnd, availStart, availEnd timeutil.WallTime) *models.Rejection {
	if reqStart.Before(availStart) || reqEnd.After(availEnd) {
		return models.NewRejection(models.ReasonOutsideAvailability,
			fmt.Sprintf("booking %s-%s outside available hours %s-%s",
				reqStart, reqEnd, availStart, availEnd))
	}
	return nil
}
