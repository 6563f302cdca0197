package activity

import (
	"fmt"
	"strings"
	"time"
)

// Start validates a source/destination pairing against the job and its
// existing lines and returns a new running line.
func Start(manifest Manifest, lines []Line, sourceTank string, dest Destination, now time.Time) (*Line, error) {
	if !dest.Complete() {
		return nil, ErrIncompleteDestination
	}
	if sourceTank == "" {
		return nil, fmt.Errorf("%w: no source tank selected", ErrTankUnavailable)
	}
	if !tankAvailable(manifest, lines, sourceTank) {
		return nil, fmt.Errorf("%w: %s", ErrTankUnavailable, sourceTank)
	}
	for _, l := range lines {
		if l.Status.Active() && l.Dest.ID == dest.ID {
			return nil, fmt.Errorf("%w: %s", ErrDestinationBusy, dest.ID)
		}
	}
	return &Line{
		ID:         LineID(sourceTank, dest.ID),
		SourceTank: sourceTank,
		Dest:       dest,
		Status:     StatusRunning,
		StartedAt:  now,
		Pauses:     []Pause{},
	}, nil
}

// Pause stops a running line. An empty reason falls back to defaultReason.
func (l *Line) Pause(reason, defaultReason string, now time.Time) error {
	if l.Status != StatusRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, l.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultReason
	}
	l.Pauses = append(l.Pauses, Pause{Start: now, Reason: reason})
	l.Status = StatusPaused
	return nil
}

// Resume closes the most recent open pause.
func (l *Line) Resume(now time.Time) error {
	if l.Status != StatusPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, l.Status)
	}
	l.closeOpenPause(now)
	l.Status = StatusRunning
	return nil
}

// Finish ends a running or paused line. The paused total is recomputed from
// the closed intervals.
func (l *Line) Finish(now time.Time) error {
	if !l.Status.Active() {
		return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, l.Status)
	}
	if l.Status == StatusPaused {
		l.closeOpenPause(now)
	}
	l.Paused = PausedDuration(l)
	end := now
	l.EndedAt = &end
	l.Status = StatusFinished
	return nil
}

func (l *Line) closeOpenPause(now time.Time) {
	for i := len(l.Pauses) - 1; i >= 0; i-- {
		if l.Pauses[i].Open() {
			end := now
			l.Pauses[i].End = &end
			return
		}
	}
}

// Clone returns a deep copy so a transition can be tried without touching the original.
func (l Line) Clone() Line {
	out := l
	if l.EndedAt != nil {
		end := *l.EndedAt
		out.EndedAt = &end
	}
	out.Pauses = make([]Pause, len(l.Pauses))
	for i, p := range l.Pauses {
		out.Pauses[i] = p
		if p.End != nil {
			end := *p.End
			out.Pauses[i].End = &end
		}
	}
	return out
}
