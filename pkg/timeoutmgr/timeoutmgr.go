// Package timeoutmgr implements timeout detection as a pure function of
// (deadlines, now) with no background scheduler and no hidden state. An
// external tick source calls Check on every tick, since the engine
// itself never blocks on time; pkg/sequence is responsible for deriving
// the current set of open Deadlines from its own state.
package timeoutmgr

import "github.com/EthnTuttle/kirk/pkg/event"

// Phase names one of the timeout classes the engine tracks.
type Phase string

const (
	// PhaseAccept is the Challenge.expiry deadline: ChallengeAccept must
	// arrive before it.
	PhaseAccept Phase = "accept"
	// PhaseReveal is the commit→reveal gap: a Reveal move must follow a
	// Commit move within the configured commit→reveal window.
	PhaseReveal Phase = "reveal"
	// PhaseMove is general move inactivity: the player whose turn it is
	// must act within the configured move-inactivity window.
	PhaseMove Phase = "move"
	// PhaseFinal is the window between game completion and both
	// required Final events being observed.
	PhaseFinal Phase = "final"
)

// Deadline is one open obligation: Author must produce some event before
// At, or it is a timeout violation against them. A zero Author means no
// single party is obliged — the accept-before-expiry deadline binds no
// specific existing player, and dissolves the sequence with no offender.
type Deadline struct {
	Phase  Phase
	Author event.PublicKey
	At     int64
}

// Violation is a fired TimeoutViolation for one phase.
type Violation struct {
	Phase    Phase
	Offender event.PublicKey
	At       int64
	Now      int64
}

// Check is the pure tick function: given the currently open deadlines and
// the observer's wall clock, it returns every deadline that has elapsed.
// It does not mutate or retain any of its inputs.
func Check(deadlines []Deadline, now int64) []Violation {
	var out []Violation
	for _, d := range deadlines {
		if now > d.At {
			out = append(out, Violation{Phase: d.Phase, Offender: d.Author, At: d.At, Now: now})
		}
	}
	return out
}

// Default phase windows (seconds), used by sequence.DefaultTimeoutConfig.
const (
	DefaultClockSkewTolerance = 300
	DefaultCommitRevealWindow = 120
	DefaultMoveInactivity     = 120
	DefaultFinalWindow        = 60
)
