package port

import (
	"time"

	"github.com/arklim/octopis-auth/internal/core/domain"
)

// RateLimitStore makes sliding-window admission decisions. Admit must run the
// prune, compare and append steps for a key as one atomic unit.
type RateLimitStore interface {
	Admit(key string, now time.Time) domain.RateLimitDecision
}
