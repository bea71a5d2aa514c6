// Package sequence implements per-game lifecycle, ordering,
// commitment binding, and timeout bookkeeping for one GameSequence.
package sequence

import (
	"fmt"

	"github.com/EthnTuttle/kirk/pkg/commitment"
	"github.com/EthnTuttle/kirk/pkg/event"
	"github.com/EthnTuttle/kirk/pkg/fraud"
	"github.com/EthnTuttle/kirk/pkg/game"
	"github.com/EthnTuttle/kirk/pkg/kirkerrors"
	"github.com/EthnTuttle/kirk/pkg/timeoutmgr"
	"github.com/EthnTuttle/kirk/pkg/tokenhash"
)

// MintChecker is the narrow mint surface a GameSequence needs to adjudicate
// a revealed token: whether the mint still considers it valid and unspent,
// and whether it has already been spent (by this sequence's own reward
// settlement or by any other sequence the mint has seen). mint.Mint
// satisfies this interface; sequence never imports pkg/mint itself.
type MintChecker interface {
	Verify(t tokenhash.Token) (bool, error)
	IsSpent(t tokenhash.Token) (bool, error)
}

// State is one of the five lifecycle states a GameSequence passes through.
type State int

const (
	StateWaitingForAccept State = iota
	StateInProgress
	StateWaitingForFinal
	StateComplete
	StateForfeited
)

func (s State) String() string {
	switch s {
	case StateWaitingForAccept:
		return "WaitingForAccept"
	case StateInProgress:
		return "InProgress"
	case StateWaitingForFinal:
		return "WaitingForFinal"
	case StateComplete:
		return "Complete"
	case StateForfeited:
		return "Forfeited"
	default:
		return "Unknown"
	}
}

// TimeoutConfig carries the per-phase timeout windows, in seconds.
// DefaultTimeoutConfig supplies the defaults; a caller passes its own
// values to Advance, Deadlines and Tick. A Challenge's game_parameters are
// not consulted for these windows.
type TimeoutConfig struct {
	ClockSkewTolerance int64
	CommitRevealWindow int64
	MoveInactivity     int64
	FinalWindow        int64
}

func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		ClockSkewTolerance: timeoutmgr.DefaultClockSkewTolerance,
		CommitRevealWindow: timeoutmgr.DefaultCommitRevealWindow,
		MoveInactivity:     timeoutmgr.DefaultMoveInactivity,
		FinalWindow:        timeoutmgr.DefaultFinalWindow,
	}
}

// GameSequence is the in-memory reassembly of one game from its events.
type GameSequence struct {
	Root         event.ID
	GameType     string
	Players      [2]event.PublicKey
	playersSet   int // 0, 1, or 2 players fixed so far
	Events       []event.Event
	State        State
	Winner       *event.PublicKey
	Offender     *event.PublicKey
	Dissolved    bool // WaitingForAccept expired before anyone committed
	CreatedAt    int64
	LastActivity int64
	Expiry       *uint64

	game        game.Game
	mintChecker MintChecker

	commitmentHash map[event.PublicKey]event.Hash32
	finalsSeen     map[event.PublicKey]event.FinalContent
}

// Option configures optional GameSequence dependencies at construction
// time.
type Option func(*GameSequence)

// WithMintChecker wires a mint (or any narrower MintChecker) into the
// sequence so advanceMove can reject a revealed token the mint no longer
// recognizes as valid, and forfeit a revealed token the mint already
// considers spent — the latter is how cross-sequence replay is detected,
// since a token melted by one sequence's reward settlement is spent at
// the mint for every sequence thereafter. Omitting this option (the
// zero value, nil) skips both checks, which is what pure offline replay
// without a live mint connection requires.
func WithMintChecker(m MintChecker) Option {
	return func(s *GameSequence) { s.mintChecker = m }
}

// New creates a GameSequence from its founding Challenge event. g must be
// the Game implementation registered for the challenge's game_type.
func New(challenge event.Event, g game.Game, opts ...Option) (*GameSequence, error) {
	if challenge.Kind != event.KindChallenge {
		return nil, fmt.Errorf("sequence: root event must be a Challenge, got %s", challenge.Kind)
	}
	content, err := event.Parse(challenge)
	if err != nil {
		return nil, kirkerrors.Codec(challenge.ID.String(), err)
	}
	cc, ok := content.(event.ChallengeContent)
	if !ok {
		return nil, fmt.Errorf("sequence: expected ChallengeContent")
	}
	if len(cc.CommitmentHashes) == 0 {
		return nil, fmt.Errorf("sequence: challenge must declare at least one commitment hash")
	}
	if g != nil {
		if err := g.ValidateParameters(cc.GameParameters); err != nil {
			return nil, fmt.Errorf("sequence: invalid game_parameters: %w", err)
		}
	}

	s := &GameSequence{
		Root:           challenge.ID,
		GameType:       cc.GameType,
		Events:         []event.Event{challenge},
		State:          StateWaitingForAccept,
		CreatedAt:      challenge.CreatedAt,
		LastActivity:   challenge.CreatedAt,
		Expiry:         cc.Expiry,
		game:           g,
		commitmentHash: map[event.PublicKey]event.Hash32{challenge.AuthorPubKey: cc.CommitmentHashes[0]},
		finalsSeen:     map[event.PublicKey]event.FinalContent{},
	}
	s.Players[0] = challenge.AuthorPubKey
	s.playersSet = 1
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *GameSequence) hasEventID(id event.ID) bool {
	for _, e := range s.Events {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *GameSequence) isPlayer(pk event.PublicKey) bool {
	for i := 0; i < s.playersSet; i++ {
		if s.Players[i] == pk {
			return true
		}
	}
	return false
}

func (s *GameSequence) terminal() bool {
	return s.State == StateComplete || s.State == StateForfeited
}

func (s *GameSequence) forfeit(v fraud.Verdict) *fraud.Verdict {
	s.State = StateForfeited
	if !v.Draw {
		winner := v.Honest
		offender := v.Offender
		s.Winner = &winner
		s.Offender = &offender
	}
	return &v
}

// revealedByAuthor flattens every token revealed by author across all of
// their Move events into the order those Move events were appended — the
// commitment binding check defers matching until Final, collecting
// reveals across the whole sequence.
func (s *GameSequence) revealedByAuthor(author event.PublicKey) []tokenhash.Token {
	var out []tokenhash.Token
	for _, e := range s.Events {
		if e.Kind != event.KindMove || e.AuthorPubKey != author {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			continue
		}
		mc, ok := content.(event.MoveContent)
		if !ok {
			continue
		}
		for _, wt := range mc.RevealedTokens {
			out = append(out, wt.ToToken())
		}
	}
	return out
}

// checkRevealedTokens asks s.mintChecker about every token e reveals, if a
// checker was wired in via WithMintChecker. A token the mint no longer
// verifies forfeits as InvalidToken; a token the mint already marks spent
// forfeits as Replay — the same canonical hash was revealed and melted in
// some other completed sequence under this mint. A mint service failure
// (as opposed to a definite answer) propagates as a kirkerrors.Mint error
// rather than a verdict, since it says nothing about either player's
// honesty.
func (s *GameSequence) checkRevealedTokens(e event.Event) (*fraud.Verdict, error) {
	if s.mintChecker == nil {
		return nil, nil
	}
	content, err := event.Parse(e)
	if err != nil {
		return nil, nil // malformed content is handled by the caller's own parse
	}
	mc, ok := content.(event.MoveContent)
	if !ok {
		return nil, nil
	}
	for _, wt := range mc.RevealedTokens {
		tok := wt.ToToken()

		spent, err := s.mintChecker.IsSpent(tok)
		if err != nil {
			return nil, kirkerrors.Mint(err)
		}
		if spent {
			return s.forfeit(fraud.Replay(s.Players, e.AuthorPubKey, e.ID, "revealed token already spent under this mint")), nil
		}

		valid, err := s.mintChecker.Verify(tok)
		if err != nil {
			return nil, kirkerrors.Mint(err)
		}
		if !valid {
			return s.forfeit(fraud.InvalidToken(s.Players, e.AuthorPubKey, e.ID, "revealed token does not verify against the mint")), nil
		}
	}
	return nil, nil
}

// Advance applies one externally-observed event to the sequence, as
// observed at wall-clock time now under cfg's clock skew tolerance. It
// returns (verdict, nil) when the event forfeits the sequence, (nil, nil)
// on an ordinary accepted transition, or (nil, err) when the event is
// simply not processable (malformed / out of context) without itself
// constituting a two-player fraud verdict — e.g. an Accept from the
// challenger's own key, observed before a second player exists to be
// "honest".
//
// now is the observer's current wall-clock time, in the same units as
// event.Event.CreatedAt (unix seconds). Passing now <= 0 skips the clock
// skew check entirely, which offline, deterministic replay of a closed
// event log relies on: that mode has no real "now" to compare against,
// and the same closed log must validate identically no matter when it is
// replayed.
func (s *GameSequence) Advance(e event.Event, now int64, cfg TimeoutConfig) (*fraud.Verdict, error) {
	if s.terminal() {
		return nil, fmt.Errorf("sequence: sequence %s is already terminal (%s)", s.Root, s.State)
	}
	if s.hasEventID(e.ID) {
		return nil, fmt.Errorf("sequence: duplicate event id %s", e.ID)
	}
	if e.CreatedAt < s.lastEvent().CreatedAt {
		return nil, fmt.Errorf("sequence: event %s created_at %d precedes prior event", e.ID, e.CreatedAt)
	}
	if now > 0 && cfg.ClockSkewTolerance > 0 && e.CreatedAt > now+cfg.ClockSkewTolerance {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "created_at is future-dated beyond clock skew tolerance")), nil
	}

	switch e.Kind {
	case event.KindChallengeAccept:
		return s.advanceAccept(e)
	case event.KindMove:
		return s.advanceMove(e)
	case event.KindFinal:
		return s.advanceFinal(e)
	default:
		return nil, fmt.Errorf("sequence: unexpected kind %s for Advance", e.Kind)
	}
}

func (s *GameSequence) lastEvent() event.Event {
	return s.Events[len(s.Events)-1]
}

func (s *GameSequence) advanceAccept(e event.Event) (*fraud.Verdict, error) {
	if s.State != StateWaitingForAccept {
		return nil, fmt.Errorf("sequence: unexpected ChallengeAccept in state %s", s.State)
	}
	content, err := event.Parse(e)
	if err != nil {
		return nil, kirkerrors.Codec(e.ID.String(), err)
	}
	ac, ok := content.(event.ChallengeAcceptContent)
	if !ok {
		return nil, fmt.Errorf("sequence: expected ChallengeAcceptContent")
	}
	if ac.ChallengeID != s.Root {
		return nil, fmt.Errorf("sequence: accept references wrong challenge_id")
	}
	if e.AuthorPubKey == s.Players[0] {
		return nil, fmt.Errorf("sequence: accept from challenger's own key is rejected")
	}
	if len(ac.CommitmentHashes) == 0 {
		return nil, fmt.Errorf("sequence: accept must declare at least one commitment hash")
	}
	if s.Expiry != nil && uint64(e.CreatedAt) > *s.Expiry {
		return nil, fmt.Errorf("sequence: accept arrived after challenge expiry")
	}

	s.Players[1] = e.AuthorPubKey
	s.playersSet = 2
	s.commitmentHash[e.AuthorPubKey] = ac.CommitmentHashes[0]
	s.Events = append(s.Events, e)
	s.State = StateInProgress
	s.LastActivity = e.CreatedAt
	return nil, nil
}

func (s *GameSequence) advanceMove(e event.Event) (*fraud.Verdict, error) {
	if s.State != StateInProgress {
		return nil, fmt.Errorf("sequence: unexpected Move in state %s", s.State)
	}
	if !s.isPlayer(e.AuthorPubKey) {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "move author is not a sequence player")), nil
	}
	parent, ok, err := event.ParentOf(e)
	if err != nil {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "move content unparseable")), nil
	}
	if !ok || !s.hasEventID(parent) {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "previous_event_id not present in sequence")), nil
	}
	if verdict, err := s.checkRevealedTokens(e); verdict != nil || err != nil {
		return verdict, err
	}
	if s.game != nil {
		if err := s.game.ValidateMove(s.Events, e, e.AuthorPubKey); err != nil {
			return s.forfeit(fraud.IllegalMove(s.Players, e.AuthorPubKey, e.ID, err.Error())), nil
		}
	}

	s.Events = append(s.Events, e)
	s.LastActivity = e.CreatedAt
	return nil, nil
}

func (s *GameSequence) advanceFinal(e event.Event) (*fraud.Verdict, error) {
	if s.State != StateInProgress && s.State != StateWaitingForFinal {
		return nil, fmt.Errorf("sequence: unexpected Final in state %s", s.State)
	}
	if !s.isPlayer(e.AuthorPubKey) {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "final author is not a sequence player")), nil
	}
	if _, already := s.finalsSeen[e.AuthorPubKey]; already {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "author already submitted Final")), nil
	}
	content, err := event.Parse(e)
	if err != nil {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "final content unparseable")), nil
	}
	fc, ok := content.(event.FinalContent)
	if !ok {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "expected FinalContent")), nil
	}
	if fc.GameSequenceRoot != s.Root {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "final references wrong game_sequence_root")), nil
	}
	if s.game != nil && !s.game.IsComplete(s.Events) {
		return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "final submitted before game reached completion")), nil
	}

	// Commitment binding check: reconstruct the author's commitment from
	// every token they've revealed across the sequence using the method
	// they declare here (defaulting to Single), and compare against the
	// hash recorded at Challenge/Accept time. An omitted method on a
	// multi-token reveal falls out of this reconstruction naturally:
	// commitment.Verify rejects a Single method against more than one
	// revealed token.
	method := commitment.Single
	if fc.CommitmentMethod != nil {
		method = *fc.CommitmentMethod
	}
	recordedHash, known := s.commitmentHash[e.AuthorPubKey]
	if !known {
		return s.forfeit(fraud.CommitmentMismatch(s.Players, e.AuthorPubKey, e.ID, "no recorded commitment for author")), nil
	}
	revealed := s.revealedByAuthor(e.AuthorPubKey)
	declared := commitment.Commitment{Hash: [32]byte(recordedHash), Method: method}
	if !commitment.Verify(declared, revealed) {
		return s.forfeit(fraud.CommitmentMismatch(s.Players, e.AuthorPubKey, e.ID, "revealed tokens do not match recorded commitment")), nil
	}

	if s.State == StateWaitingForFinal {
		prior := s.firstFinal()
		if prior != nil && string(canonicalOrRaw(prior.FinalState)) != string(canonicalOrRaw(fc.FinalState)) {
			return s.forfeit(fraud.ChainViolation(s.Players, e.AuthorPubKey, e.ID, "final_state inconsistent with peer's Final")), nil
		}
	}

	s.finalsSeen[e.AuthorPubKey] = fc
	s.Events = append(s.Events, e)
	s.LastActivity = e.CreatedAt

	required := 1
	if s.game != nil {
		required = s.game.RequiredFinalEvents()
	}
	if len(s.finalsSeen) < required {
		s.State = StateWaitingForFinal
		return nil, nil
	}

	var winner *event.PublicKey
	if s.game != nil {
		winner, err = s.game.DetermineWinner(s.Events)
		if err != nil {
			return nil, kirkerrors.Internal(fmt.Errorf("determine_winner: %w", err))
		}
	}
	s.State = StateComplete
	s.Winner = winner
	return nil, nil
}

func (s *GameSequence) firstFinal() *event.FinalContent {
	for _, e := range s.Events {
		if e.Kind != event.KindFinal {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			continue
		}
		fc := content.(event.FinalContent)
		return &fc
	}
	return nil
}

func canonicalOrRaw(raw []byte) []byte {
	canon, err := event.Canonicalize(raw)
	if err != nil {
		return raw
	}
	return canon
}

// Deadlines derives the currently open obligations from the sequence's
// state — a pure function of (s, cfg), fed into timeoutmgr.Check by an
// external tick source.
func (s *GameSequence) Deadlines(cfg TimeoutConfig) []timeoutmgr.Deadline {
	var out []timeoutmgr.Deadline
	switch s.State {
	case StateWaitingForAccept:
		if s.Expiry != nil {
			out = append(out, timeoutmgr.Deadline{Phase: timeoutmgr.PhaseAccept, At: int64(*s.Expiry)})
		}
	case StateInProgress:
		for i := 0; i < s.playersSet; i++ {
			p := s.Players[i]
			if s.lastActivityOf(p) >= s.LastActivity {
				// p's own event is the most recent one in the sequence:
				// the obligation to respond falls on the peer, not p.
				continue
			}
			window := cfg.MoveInactivity
			if s.lastMoveKind(p) == event.MoveKindCommit {
				window = cfg.CommitRevealWindow
			}
			out = append(out, timeoutmgr.Deadline{
				Phase:  s.phaseFor(p),
				Author: p,
				At:     s.LastActivity + window,
			})
		}
	case StateWaitingForFinal:
		for i := 0; i < s.playersSet; i++ {
			p := s.Players[i]
			if _, done := s.finalsSeen[p]; done {
				continue
			}
			out = append(out, timeoutmgr.Deadline{Phase: timeoutmgr.PhaseFinal, Author: p, At: s.LastActivity + cfg.FinalWindow})
		}
	}
	return out
}

func (s *GameSequence) phaseFor(p event.PublicKey) timeoutmgr.Phase {
	if s.lastMoveKind(p) == event.MoveKindCommit {
		return timeoutmgr.PhaseReveal
	}
	return timeoutmgr.PhaseMove
}

// lastActivityOf is the created_at of the most recent event p authored in
// the sequence (Challenge, Accept, or Move), used to tell whether p is the
// one who must respond next or the one waiting on their peer.
func (s *GameSequence) lastActivityOf(p event.PublicKey) int64 {
	var last int64 = -1
	for _, e := range s.Events {
		if e.AuthorPubKey == p && e.CreatedAt > last {
			last = e.CreatedAt
		}
	}
	return last
}

func (s *GameSequence) lastMoveKind(p event.PublicKey) event.MoveKind {
	var last event.MoveKind
	for _, e := range s.Events {
		if e.Kind != event.KindMove || e.AuthorPubKey != p {
			continue
		}
		content, err := event.Parse(e)
		if err != nil {
			continue
		}
		mc, ok := content.(event.MoveContent)
		if !ok {
			continue
		}
		last = mc.MoveType
	}
	return last
}

// Tick applies the external clock to the sequence's open deadlines. It
// returns a forfeit verdict if any deadline elapsed, or nil if the
// sequence remains live. A WaitingForAccept expiry dissolves the
// sequence with no reward rather than producing a forfeit verdict.
func (s *GameSequence) Tick(now int64, cfg TimeoutConfig) *fraud.Verdict {
	if s.terminal() {
		return nil
	}
	deadlines := s.Deadlines(cfg)
	violations := timeoutmgr.Check(deadlines, now)
	if len(violations) == 0 {
		return nil
	}

	if s.State == StateWaitingForAccept {
		s.State = StateForfeited
		s.Dissolved = true
		return &fraud.Verdict{Class: fraud.ClassTimeout, Draw: true, Reason: "challenge expired before acceptance"}
	}

	if len(violations) >= int(s.playersSet) && s.playersSet == 2 {
		// Every remaining player is simultaneously delinquent: drawn, no
		// rewards.
		v := fraud.Drawn("both players failed to act before their deadlines")
		s.State = StateForfeited
		s.Dissolved = true
		return &v
	}

	v := fraud.Timeout(s.Players, violations[0].Offender, fmt.Sprintf("%s deadline elapsed", violations[0].Phase))
	return s.forfeit(v)
}
