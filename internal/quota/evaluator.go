package quota

import "fmt"

// Dimension names a metered resource.
type Dimension string

const (
	DimensionConversations Dimension = "conversations"
	DimensionCharacters    Dimension = "characters"
	DimensionMinutes       Dimension = "minutes"
)

// Counters is consumption for one day.
type Counters struct {
	Conversations int64 `json:"conversations"`
	Characters    int64 `json:"characters"`
	Minutes       int64 `json:"minutes"`
}

// Delta is a prospective or completed consumption. Nil fields are not part of
// the request and are neither checked nor added.
type Delta struct {
	Conversations *int64 `json:"conversations,omitempty" validate:"omitempty,min=0"`
	Characters    *int64 `json:"characters,omitempty" validate:"omitempty,min=0"`
	Minutes       *int64 `json:"minutes,omitempty" validate:"omitempty,min=0"`
}

// IsEmpty reports whether no dimension is present.
func (d Delta) IsEmpty() bool {
	return d.Conversations == nil && d.Characters == nil && d.Minutes == nil
}

// Counters flattens the delta, treating absent fields as zero.
func (d Delta) Counters() Counters {
	return Counters{
		Conversations: valueOrZero(d.Conversations),
		Characters:    valueOrZero(d.Characters),
		Minutes:       valueOrZero(d.Minutes),
	}
}

// Add returns c plus every present field of d.
func (c Counters) Add(d Delta) Counters {
	flat := d.Counters()
	return Counters{
		Conversations: c.Conversations + flat.Conversations,
		Characters:    c.Characters + flat.Characters,
		Minutes:       c.Minutes + flat.Minutes,
	}
}

// Verdict is the outcome of a limit check.
type Verdict struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Dimension Dimension `json:"dimension,omitempty"`
}

// Allowed is the passing verdict.
func Allowed() Verdict {
	return Verdict{Allowed: true}
}

// Denied builds a failing verdict. dimension may be empty when the denial is
// not about a quota, e.g. a missing user.
func Denied(reason string, dimension Dimension) Verdict {
	return Verdict{Allowed: false, Reason: reason, Dimension: dimension}
}

type check struct {
	dimension Dimension
	delta     *int64
	current   int64
	limit     int64
	singular  string
}

// Evaluate decides whether current+delta fits in q. Dimensions are checked in
// a fixed order (conversations, characters, minutes) and the first failure wins.
func Evaluate(current Counters, delta Delta, q Quota) Verdict {
	checks := []check{
		{DimensionConversations, delta.Conversations, current.Conversations, q.DailyConversations, "conversation"},
		{DimensionCharacters, delta.Characters, current.Characters, q.DailyCharacters, "character"},
		{DimensionMinutes, delta.Minutes, current.Minutes, q.DailyMinutes, "minutes"},
	}
	for _, c := range checks {
		if c.delta == nil {
			continue
		}
		if !IsWithinLimit(c.current+*c.delta, c.limit) {
			return Denied(denialReason(c), c.dimension)
		}
	}
	return Allowed()
}

// ExceedsAny reports whether any dimension of c is over its cap.
func ExceedsAny(c Counters, q Quota) bool {
	return !IsWithinLimit(c.Conversations, q.DailyConversations) ||
		!IsWithinLimit(c.Characters, q.DailyCharacters) ||
		!IsWithinLimit(c.Minutes, q.DailyMinutes)
}

func denialReason(c check) string {
	return fmt.Sprintf(
		"Daily %s limit reached (%d %s). You have used %d of %d %s.",
		c.singular, c.limit, c.dimension, c.current, c.limit, c.dimension,
	)
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Amount returns a pointer for building a Delta inline.
func Amount(v int64) *int64 {
	return &v
}
