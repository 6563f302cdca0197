package activity

import "time"

// PausedDuration sums (end - start) over the closed pause intervals.
func PausedDuration(l *Line) time.Duration {
	var total time.Duration
	for _, p := range l.Pauses {
		if p.End == nil {
			continue
		}
		if d := p.End.Sub(p.Start); d > 0 {
			total += d
		}
	}
	return total
}

// OpenPause returns the interval the line is currently paused in, if any.
func OpenPause(l *Line) *Pause {
	for i := len(l.Pauses) - 1; i >= 0; i-- {
		if l.Pauses[i].Open() {
			return &l.Pauses[i]
		}
	}
	return nil
}

// Elapsed is the effective transfer time. A paused line is frozen at the
// start of its open pause.
func Elapsed(l *Line, now time.Time) time.Duration {
	ref := now
	switch l.Status {
	case StatusPaused:
		if p := OpenPause(l); p != nil {
			ref = p.Start
		}
	case StatusFinished:
		if l.EndedAt != nil {
			ref = *l.EndedAt
		}
	}
	d := ref.Sub(l.StartedAt) - PausedDuration(l)
	if d < 0 {
		return 0
	}
	return d
}

// View is a display snapshot of a line at one tick.
type View struct {
	Line
	ElapsedSeconds int64 `json:"elapsed_seconds"`
	PausedSeconds  int64 `json:"paused_seconds"`
	StalePause     bool  `json:"stale_pause,omitempty"`
}

// BuildView computes the display durations of l at now. An open pause older
// than staleAfter is flagged; staleAfter <= 0 disables the flag.
func BuildView(l Line, now time.Time, staleAfter time.Duration) View {
	paused := PausedDuration(&l)
	v := View{Line: l}
	if p := OpenPause(&l); p != nil && l.Status == StatusPaused {
		if open := now.Sub(p.Start); open > 0 {
			paused += open
			v.StalePause = staleAfter > 0 && open > staleAfter
		}
	}
	v.ElapsedSeconds = int64(Elapsed(&l, now) / time.Second)
	v.PausedSeconds = int64(paused / time.Second)
	return v
}

// BuildViews applies BuildView to every line.
func BuildViews(lines []Line, now time.Time, staleAfter time.Duration) []View {
	out := make([]View, len(lines))
	for i, l := range lines {
		out[i] = BuildView(l, now, staleAfter)
	}
	return out
}
