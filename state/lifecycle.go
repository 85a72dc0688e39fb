// Package state tracks the half-duplex open/close progress of a logical stream.
//
// A Lifecycle records progress, not a single current state: the initial
// (client to upstream) and reply (upstream to client) tracks advance
// independently and flags, once reached, stay set. A stream can therefore
// report opened and closing at the same time.
package state

import (
	"errors"
	"fmt"
	"strings"
)

// Direction selects one of the two tracks of a stream.
type Direction uint8

// Stream directions
const (
	Initial Direction = iota
	Reply
)

func (d Direction) String() string {
	if d == Initial {
		return "initial"
	}
	return "reply"
}

// Phase is a step of progress on a track. PhaseAborting is only valid on the reply track.
type Phase uint8

// Phases in their typical order
const (
	PhaseNone Phase = iota
	PhaseOpening
	PhaseOpened
	PhaseClosing
	PhaseAborting
	PhaseClosed
)

var phaseNames = [...]string{"none", "opening", "opened", "closing", "aborting", "closed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

var (
	// ErrInvalidPhase is returned for a phase that does not exist on the requested track.
	ErrInvalidPhase = errors.New("invalid phase for direction")
	// ErrRegression is returned when a transition would unset progress already recorded.
	ErrRegression = errors.New("lifecycle cannot regress")
)

const (
	initialOpening uint16 = 1 << iota
	initialOpened
	initialClosing
	initialClosed
	replyOpening
	replyOpened
	replyClosing
	replyAborting
	replyClosed

	initialMask = initialOpening | initialOpened | initialClosing | initialClosed
	replyMask   = replyOpening | replyOpened | replyClosing | replyAborting | replyClosed
)

// Lifecycle is the additive progress record of one stream. The zero value has no progress.
type Lifecycle struct {
	flags uint16
}

// OpeningInitial marks the initial track as opening.
func (l Lifecycle) OpeningInitial() Lifecycle {
	return Lifecycle{l.flags | initialOpening}
}

// OpenInitial marks the initial track as opened.
func (l Lifecycle) OpenInitial() Lifecycle {
	return Lifecycle{l.flags | initialOpening | initialOpened}
}

// ClosingInitial marks the initial track as closing.
func (l Lifecycle) ClosingInitial() Lifecycle {
	return Lifecycle{l.flags | initialClosing}
}

// CloseInitial marks the initial track as closed.
func (l Lifecycle) CloseInitial() Lifecycle {
	return Lifecycle{l.flags | initialClosing | initialClosed}
}

// OpeningReply marks the reply track as opening.
func (l Lifecycle) OpeningReply() Lifecycle {
	return Lifecycle{l.flags | replyOpening}
}

// OpenReply marks the reply track as opened.
func (l Lifecycle) OpenReply() Lifecycle {
	return Lifecycle{l.flags | replyOpening | replyOpened}
}

// ClosingReply marks the reply track as gracefully closing.
func (l Lifecycle) ClosingReply() Lifecycle {
	return Lifecycle{l.flags | replyClosing}
}

// AbortingReply marks the reply track as aborting.
func (l Lifecycle) AbortingReply() Lifecycle {
	return Lifecycle{l.flags | replyAborting}
}

// CloseReply marks the reply track as closed.
func (l Lifecycle) CloseReply() Lifecycle {
	if l.flags&replyAborting != 0 {
		return Lifecycle{l.flags | replyClosed}
	}
	return Lifecycle{l.flags | replyClosing | replyClosed}
}

// Transition applies phase to the track of dir and validates the request.
// Reaching a phase again is a no-op. PhaseNone on a track with progress is
// rejected with ErrRegression.
func (l Lifecycle) Transition(dir Direction, phase Phase) (Lifecycle, error) {
	switch dir {
	case Initial:
		switch phase {
		case PhaseNone:
			if l.flags&initialMask != 0 {
				return l, fmt.Errorf("%w: %s track is %s", ErrRegression, dir, l.InitialPhase())
			}
			return l, nil
		case PhaseOpening:
			return l.OpeningInitial(), nil
		case PhaseOpened:
			return l.OpenInitial(), nil
		case PhaseClosing:
			return l.ClosingInitial(), nil
		case PhaseClosed:
			return l.CloseInitial(), nil
		}
	case Reply:
		switch phase {
		case PhaseNone:
			if l.flags&replyMask != 0 {
				return l, fmt.Errorf("%w: %s track is %s", ErrRegression, dir, l.ReplyPhase())
			}
			return l, nil
		case PhaseOpening:
			return l.OpeningReply(), nil
		case PhaseOpened:
			return l.OpenReply(), nil
		case PhaseClosing:
			return l.ClosingReply(), nil
		case PhaseAborting:
			return l.AbortingReply(), nil
		case PhaseClosed:
			return l.CloseReply(), nil
		}
	}
	return l, fmt.Errorf("%w: %s on %s track", ErrInvalidPhase, phase, dir)
}

// InitialOpening reports whether the initial track started opening.
func (l Lifecycle) InitialOpening() bool { return l.flags&initialOpening != 0 }

// InitialOpened reports whether the initial track opened.
func (l Lifecycle) InitialOpened() bool { return l.flags&initialOpened != 0 }

// InitialClosing reports whether the initial track started closing.
func (l Lifecycle) InitialClosing() bool { return l.flags&initialClosing != 0 }

// InitialClosed reports whether the initial track closed.
func (l Lifecycle) InitialClosed() bool { return l.flags&initialClosed != 0 }

// ReplyOpening reports whether the reply track started opening.
func (l Lifecycle) ReplyOpening() bool { return l.flags&replyOpening != 0 }

// ReplyOpened reports whether the reply track opened.
func (l Lifecycle) ReplyOpened() bool { return l.flags&replyOpened != 0 }

// ReplyClosing reports whether the reply track began terminating, gracefully or not.
func (l Lifecycle) ReplyClosing() bool { return l.flags&(replyClosing|replyAborting) != 0 }

// ReplyAborting reports whether the reply track took the abort path.
func (l Lifecycle) ReplyAborting() bool { return l.flags&replyAborting != 0 }

// ReplyClosed reports whether the reply track closed.
func (l Lifecycle) ReplyClosed() bool { return l.flags&replyClosed != 0 }

// Closed reports whether both tracks closed.
func (l Lifecycle) Closed() bool { return l.InitialClosed() && l.ReplyClosed() }

// Closing reports whether both tracks began terminating.
func (l Lifecycle) Closing() bool { return l.InitialClosing() && l.ReplyClosing() }

// InitialPhase returns the furthest phase reached by the initial track.
func (l Lifecycle) InitialPhase() Phase {
	switch {
	case l.InitialClosed():
		return PhaseClosed
	case l.InitialClosing():
		return PhaseClosing
	case l.InitialOpened():
		return PhaseOpened
	case l.InitialOpening():
		return PhaseOpening
	}
	return PhaseNone
}

// ReplyPhase returns the furthest phase reached by the reply track.
func (l Lifecycle) ReplyPhase() Phase {
	switch {
	case l.ReplyClosed():
		return PhaseClosed
	case l.ReplyAborting():
		return PhaseAborting
	case l.flags&replyClosing != 0:
		return PhaseClosing
	case l.ReplyOpened():
		return PhaseOpened
	case l.ReplyOpening():
		return PhaseOpening
	}
	return PhaseNone
}

func (l Lifecycle) String() string {
	var b strings.Builder
	b.WriteString("initial=")
	b.WriteString(l.InitialPhase().String())
	b.WriteString(" reply=")
	b.WriteString(l.ReplyPhase().String())
	return b.String()
}
