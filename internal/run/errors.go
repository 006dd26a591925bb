package run

import "errors"

// Conditions reported to callers. None of them invalidate accumulated session data.
var (
	ErrPermissionDenied = errors.New("location permission required")
	ErrAlreadyTracking  = errors.New("a run is already being tracked")
	ErrNotTracking      = errors.New("no run is being tracked")
	ErrNotPaused        = errors.New("run is not paused")
	ErrSignalDegraded   = errors.New("location updates stalled")
	ErrTrackerClosed    = errors.New("tracker has been released")
)

// ConditionName maps a condition to its wire name. Unknown errors map to "error".
func ConditionName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrAlreadyTracking):
		return "already_tracking"
	case errors.Is(err, ErrNotTracking):
		return "not_tracking"
	case errors.Is(err, ErrNotPaused):
		return "not_paused"
	case errors.Is(err, ErrSignalDegraded):
		return "signal_degraded"
	case errors.Is(err, ErrTrackerClosed):
		return "tracker_closed"
	default:
		return "error"
	}
}

// IsAdvisory reports whether err is informational only.
func IsAdvisory(err error) bool {
	return errors.Is(err, ErrSignalDegraded)
}
