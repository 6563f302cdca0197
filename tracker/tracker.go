// Package tracker drives the unloading workflow of a job: it validates
// operator actions through the activity state machine, persists them and
// reports what happened to the engine.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"unloadtrack/activity"
	"unloadtrack/store"
)

var (
	ErrJobNotReady = errors.New("job still has unassigned tanks or active lines")
	ErrJobDone     = errors.New("job already completed")
	// ErrDestinationUnavailable means the destination is not in the plant
	// layout or its stock record is not aktif.
	ErrDestinationUnavailable = errors.New("destination not selectable")
)

type LogFunc func(format string, args ...any)

type Config struct {
	DB                 *store.DB
	Layout             activity.Layout
	DefaultPauseReason string
	StalePauseAfter    time.Duration
	Emitter            Emitter
	LogFunc            LogFunc
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Tracker struct {
	db            *store.DB
	layout        activity.Layout
	defaultReason string
	staleAfter    time.Duration
	emitter       Emitter
	logFn         LogFunc
	now           func() time.Time

	mu   sync.Mutex
	jobs map[int64]*sync.Mutex
}

func New(c Config) *Tracker {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		db:            c.DB,
		layout:        c.Layout,
		defaultReason: c.DefaultPauseReason,
		staleAfter:    c.StalePauseAfter,
		emitter:       c.Emitter,
		logFn:         logFn,
		now:           clock,
		jobs:          make(map[int64]*sync.Mutex),
	}
}

// lockJob serializes actions on one job inside this process. Writers in
// other processes are caught by the row revisions instead.
func (t *Tracker) lockJob(jobID int64) func() {
	t.mu.Lock()
	m, ok := t.jobs[jobID]
	if !ok {
		m = &sync.Mutex{}
		t.jobs[jobID] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// JobState is everything the operator screen needs for one job.
type JobState struct {
	Job            *store.Job      `json:"job"`
	Active         []activity.View `json:"active"`
	Completed      []activity.View `json:"completed"`
	AvailableTanks []string        `json:"available_tanks"`
	CanComplete    bool            `json:"can_complete"`
}

// LoadJob returns the job together with its persisted lines. A done job
// shows the completed list it was finalized with.
func (t *Tracker) LoadJob(ctx context.Context, jobID int64) (*JobState, error) {
	job, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := t.now()
	if job.Status == store.JobDone {
		return &JobState{
			Job:            job,
			Active:         []activity.View{},
			Completed:      activity.BuildViews(job.CompletedLines, now, 0),
			AvailableTanks: []string{},
		}, nil
	}

	lines, err := t.db.ListActivities(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load lines of job %d: %w", jobID, err)
	}
	active, completed := activity.Split(lines)
	st := &JobState{
		Job:            job,
		Active:         activity.BuildViews(active, now, t.staleAfter),
		Completed:      activity.BuildViews(completed, now, 0),
		AvailableTanks: activity.AvailableTanks(job.Manifest, lines),
	}
	if st.AvailableTanks == nil {
		st.AvailableTanks = []string{}
	}
	st.CanComplete = len(active) == 0 && len(st.AvailableTanks) == 0
	for _, v := range st.Active {
		if v.StalePause {
			p := activity.OpenPause(&v.Line)
			t.logFn("tracker: job %d line %s paused since %s (%s)", jobID, v.ID, p.Start.Format(time.RFC3339), p.Reason)
		}
	}
	return st, nil
}

// DestinationOptions lists the destinations that may be picked for a new
// line of the job.
func (t *Tracker) DestinationOptions(ctx context.Context, jobID int64, dt activity.DestType, unit string) ([]string, error) {
	lines, err := t.db.ListActivities(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return t.selectable(ctx, lines, dt, unit)
}

func (t *Tracker) selectable(ctx context.Context, lines []activity.Line, dt activity.DestType, unit string) ([]string, error) {
	var statuses map[string]string
	if dt == activity.DestPlantSilo {
		var err error
		statuses, err = t.db.StockStatuses(ctx, store.GroupKey(activity.Destination{Type: dt, Unit: unit}))
		if err != nil {
			return nil, fmt.Errorf("stock statuses: %w", err)
		}
	}
	return activity.SelectableDestinations(t.layout, lines, statuses, dt, unit)
}

// StartLine opens a new line from tank into dest.
func (t *Tracker) StartLine(ctx context.Context, jobID int64, tank string, dest activity.Destination, actor string) (*activity.Line, error) {
	defer t.lockJob(jobID)()

	job, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == store.JobDone {
		return nil, ErrJobDone
	}
	lines, err := t.db.ListActivities(ctx, jobID)
	if err != nil {
		return nil, err
	}
	line, err := activity.Start(job.Manifest, lines, strings.TrimSpace(tank), dest, t.now())
	if err != nil {
		return nil, err
	}
	options, err := t.selectable(ctx, lines, dest.Type, dest.Unit)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(options, dest.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDestinationUnavailable, dest.ID)
	}
	if err := t.db.InsertActivity(ctx, jobID, line); err != nil {
		return nil, err
	}
	t.logFn("tracker: job %d started %s", jobID, line.ID)
	t.emitter.EmitLineStarted(jobID, *line, actor)
	return line, nil
}

// PauseLine pauses a running line. An empty reason records the configured default.
func (t *Tracker) PauseLine(ctx context.Context, jobID int64, lineID, reason, actor string) (*activity.Line, error) {
	line, err := t.transition(ctx, jobID, lineID, func(l *activity.Line, now time.Time) error {
		return l.Pause(reason, t.defaultReason, now)
	})
	if err != nil {
		return nil, err
	}
	t.emitter.EmitLinePaused(jobID, *line, line.Pauses[len(line.Pauses)-1].Reason, actor)
	return line, nil
}

func (t *Tracker) ResumeLine(ctx context.Context, jobID int64, lineID, actor string) (*activity.Line, error) {
	line, err := t.transition(ctx, jobID, lineID, func(l *activity.Line, now time.Time) error {
		return l.Resume(now)
	})
	if err != nil {
		return nil, err
	}
	t.emitter.EmitLineResumed(jobID, *line, actor)
	return line, nil
}

// transition applies fn to a copy of the stored line and saves it. The copy
// is only returned once the store accepted it.
func (t *Tracker) transition(ctx context.Context, jobID int64, lineID string, fn func(*activity.Line, time.Time) error) (*activity.Line, error) {
	defer t.lockJob(jobID)()

	stored, err := t.db.GetActivity(ctx, jobID, lineID)
	if err != nil {
		return nil, err
	}
	next := stored.Clone()
	if err := fn(&next, t.now()); err != nil {
		return nil, err
	}
	if err := t.db.UpdateActivity(ctx, jobID, &next, stored.Revision); err != nil {
		return nil, err
	}
	t.logFn("tracker: job %d line %s %s", jobID, lineID, next.Status)
	return &next, nil
}

// FinishLine ends a line and credits the tank's manifest quantity to the
// destination stock in the same transaction.
func (t *Tracker) FinishLine(ctx context.Context, jobID int64, lineID, actor string) (*activity.Line, *store.StockCredit, error) {
	defer t.lockJob(jobID)()

	job, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	stored, err := t.db.GetActivity(ctx, jobID, lineID)
	if err != nil {
		return nil, nil, err
	}
	next := stored.Clone()
	if err := next.Finish(t.now()); err != nil {
		return nil, nil, err
	}
	qty := job.Manifest[next.SourceTank]
	credit, err := t.db.FinishActivity(ctx, jobID, &next, stored.Revision, qty)
	if err != nil {
		return nil, nil, err
	}
	t.logFn("tracker: job %d finished %s, credited %.0f to %s/%s", jobID, lineID, qty, credit.GroupKey, credit.DestID)
	t.emitter.EmitLineFinished(jobID, next, actor)
	t.emitter.EmitStockCredited(jobID, *credit, actor)
	return &next, credit, nil
}

// Reconcile credits a finished line whose stock update is missing. A line
// that is already credited returns store.ErrAlreadyCredited and changes
// nothing.
func (t *Tracker) Reconcile(ctx context.Context, jobID int64, lineID, actor string) (*store.StockCredit, error) {
	defer t.lockJob(jobID)()

	job, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	line, err := t.db.GetActivity(ctx, jobID, lineID)
	if errors.Is(err, store.ErrNotFound) {
		line = findLine(job.CompletedLines, lineID)
		if line == nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if line.Status != activity.StatusFinished {
		return nil, fmt.Errorf("%w: line %s is %s", activity.ErrInvalidTransition, lineID, line.Status)
	}
	credit, err := t.db.CreditLine(ctx, jobID, line, job.Manifest[line.SourceTank])
	if err != nil {
		return nil, err
	}
	t.logFn("tracker: job %d reconciled %s", jobID, lineID)
	t.emitter.EmitStockCredited(jobID, *credit, actor)
	return credit, nil
}

func findLine(lines []activity.Line, id string) *activity.Line {
	for i := range lines {
		if lines[i].ID == id {
			l := lines[i]
			return &l
		}
	}
	return nil
}

// CompleteJob finalizes a job once no line is active and every manifest tank
// with a quantity has been assigned. A manifest of only empty tanks completes
// with no lines.
func (t *Tracker) CompleteJob(ctx context.Context, jobID int64, actor string) (*store.Job, error) {
	defer t.lockJob(jobID)()

	job, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == store.JobDone {
		return nil, ErrJobDone
	}
	lines, err := t.db.ListActivities(ctx, jobID)
	if err != nil {
		return nil, err
	}
	active, completed := activity.Split(lines)
	if len(active) > 0 || len(activity.AvailableTanks(job.Manifest, lines)) > 0 {
		return nil, ErrJobNotReady
	}
	if err := t.db.FinalizeJob(ctx, jobID, completed, t.now()); err != nil {
		if errors.Is(err, store.ErrActiveLines) {
			return nil, ErrJobNotReady
		}
		return nil, err
	}
	done, err := t.db.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	t.logFn("tracker: job %d (%s) completed with %d lines", jobID, job.Code, len(completed))
	t.emitter.EmitJobCompleted(jobID, job.Code, len(completed), actor)
	return done, nil
}

// Arrival is a job as announced by the upstream arrival-confirmation service.
type Arrival struct {
	Code     string            `json:"code"`
	Vessel   string            `json:"vessel"`
	Material string            `json:"material"`
	Manifest activity.Manifest `json:"manifest"`
}

// ImportJob creates a ready job from an arrival. Re-announcing a known code
// refreshes it until a line has started; a done job is left alone.
func (t *Tracker) ImportJob(ctx context.Context, a Arrival) (*store.Job, bool, error) {
	if strings.TrimSpace(a.Code) == "" {
		return nil, false, errors.New("arrival has no code")
	}
	if len(a.Manifest) == 0 {
		return nil, false, fmt.Errorf("arrival %s has an empty manifest", a.Code)
	}
	for tank, qty := range a.Manifest {
		if tank == "" || qty < 0 {
			return nil, false, fmt.Errorf("arrival %s: invalid manifest entry %q=%v", a.Code, tank, qty)
		}
	}
	job := &store.Job{Code: a.Code, Vessel: a.Vessel, Material: a.Material, Manifest: a.Manifest, CreatedAt: t.now()}
	created, err := t.db.UpsertJob(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("import %s: %w", a.Code, err)
	}
	if created {
		t.logFn("tracker: imported job %d (%s) %s", job.ID, job.Code, job.Vessel)
		t.emitter.EmitJobImported(job.ID, job.Code, job.Vessel, job.Material)
	}
	return job, created, nil
}
