package media

import "errors"

var (
	// ErrNotFound means the requested item id does not exist for its kind.
	ErrNotFound = errors.New("content not found")
	// ErrExhausted means every item of the kind was already shown to the user
	// for the origin. No write happens when it is returned.
	ErrExhausted = errors.New("no unseen content left")
	// ErrQuotaExceeded means the daily cap for (user, kind, origin) is reached.
	ErrQuotaExceeded = errors.New("daily quota exceeded")
	// ErrAlreadyVoted means the user already has a vote on the item.
	ErrAlreadyVoted = errors.New("already voted")
	// ErrStoreUnavailable wraps connection level store failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDeliveryFailed wraps a transport failure for a single recipient.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrUnknownKind rejects kinds outside the fixed set.
	ErrUnknownKind = errors.New("unknown content kind")
	// ErrUnknownOrigin rejects origins outside the fixed set.
	ErrUnknownOrigin = errors.New("unknown delivery origin")
)

// Class maps an error to a short label for logs and metrics.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExhausted):
		return "exhausted"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrAlreadyVoted):
		return "already_voted"
	case errors.Is(err, ErrDeliveryFailed):
		return "send_failed"
	case errors.Is(err, ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, ErrUnknownOrigin):
		return "unknown_origin"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	}
	return "error"
}
