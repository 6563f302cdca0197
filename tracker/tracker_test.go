package tracker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unloadtrack/activity"
	"unloadtrack/config"
	"unloadtrack/store"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type recordingEmitter struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEmitter) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recordingEmitter) EmitJobImported(jobID int64, code, vessel, material string) {
	r.add("imported " + code)
}
func (r *recordingEmitter) EmitLineStarted(jobID int64, line activity.Line, actor string) {
	r.add("started " + line.ID)
}
func (r *recordingEmitter) EmitLinePaused(jobID int64, line activity.Line, reason, actor string) {
	r.add("paused " + line.ID + " " + reason)
}
func (r *recordingEmitter) EmitLineResumed(jobID int64, line activity.Line, actor string) {
	r.add("resumed " + line.ID)
}
func (r *recordingEmitter) EmitLineFinished(jobID int64, line activity.Line, actor string) {
	r.add("finished " + line.ID)
}
func (r *recordingEmitter) EmitStockCredited(jobID int64, credit store.StockCredit, actor string) {
	r.add("credited " + credit.DestID)
}
func (r *recordingEmitter) EmitJobCompleted(jobID int64, code string, lines int, actor string) {
	r.add("completed " + code)
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	db    *store.DB
	tr    *Tracker
	em    *recordingEmitter
	clock *clock
	job   *store.Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "tracker.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{db: db, em: &recordingEmitter{}, clock: &clock{now: t0}}
	f.tr = New(Config{
		DB: db,
		Layout: activity.Layout{
			Units:       map[string][]string{"BP-1": {"silo-1", "silo-2", "silo-3", "silo-4"}},
			BufferSilos: []string{"bs-1"},
			BufferTanks: []string{"tank-6"},
		},
		DefaultPauseReason: "tanpa keterangan",
		StalePauseAfter:    12 * time.Hour,
		Emitter:            f.em,
		LogFunc:            t.Logf,
		Clock:              f.clock.Now,
	})
	job, created, err := f.tr.ImportJob(context.Background(), Arrival{
		Code: "DO-100", Vessel: "KM Sejahtera", Material: "CPO",
		Manifest: activity.Manifest{"tank-1": 20000, "tank-2": 15000},
	})
	require.NoError(t, err)
	require.True(t, created)
	f.job = job
	return f
}

func silo(id string) activity.Destination {
	return activity.Destination{Type: activity.DestPlantSilo, ID: id, Unit: "BP-1"}
}

func TestScenario_PauseResumeFinishCreditsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)
	assert.Equal(t, activity.StatusRunning, line.Status)

	f.clock.advance(90 * time.Second)
	_, err = f.tr.PauseLine(ctx, f.job.ID, line.ID, "istirahat", "budi")
	require.NoError(t, err)
	f.clock.advance(60 * time.Second)
	_, err = f.tr.ResumeLine(ctx, f.job.ID, line.ID, "budi")
	require.NoError(t, err)
	f.clock.advance(150 * time.Second)

	done, credit, err := f.tr.FinishLine(ctx, f.job.ID, line.ID, "budi")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, done.Paused)
	assert.Equal(t, 240*time.Second, activity.Elapsed(done, f.clock.now))
	assert.Equal(t, 20000.0, credit.Quantity)

	rec, err := f.db.GetStockRecord(ctx, "plant/BP-1", "silo-3")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rec.Quantity)

	st, err := f.tr.LoadJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, st.Active)
	require.Len(t, st.Completed, 1)
	assert.Equal(t, int64(240), st.Completed[0].ElapsedSeconds)
	assert.Equal(t, []string{"tank-2"}, st.AvailableTanks)
	assert.False(t, st.CanComplete)

	assert.Equal(t, []string{
		"imported DO-100",
		"started tank-1@silo-3",
		"paused tank-1@silo-3 istirahat",
		"resumed tank-1@silo-3",
		"finished tank-1@silo-3",
		"credited silo-3",
	}, f.em.events)
}

func TestStartLine_TankOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)

	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-4"), "budi")
	assert.ErrorIs(t, err, activity.ErrTankUnavailable)

	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-9", silo("silo-4"), "budi")
	assert.ErrorIs(t, err, activity.ErrTankUnavailable)
}

func TestStartLine_DestinationRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.UpsertStockMeta(ctx, "plant/BP-1", "silo-2", activity.StockRepair, 0))

	opts, err := f.tr.DestinationOptions(ctx, f.job.ID, activity.DestPlantSilo, "BP-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"silo-1", "silo-3", "silo-4"}, opts)

	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-2"), "budi")
	assert.ErrorIs(t, err, ErrDestinationUnavailable)
	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-99"), "budi")
	assert.ErrorIs(t, err, ErrDestinationUnavailable)
	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", activity.Destination{Type: activity.DestPlantSilo, ID: "silo-1"}, "budi")
	assert.ErrorIs(t, err, activity.ErrIncompleteDestination)
	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", activity.Destination{Type: activity.DestPlantSilo, ID: "silo-1", Unit: "BP-9"}, "budi")
	assert.ErrorIs(t, err, activity.ErrUnknownUnit)

	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-1"), "budi")
	require.NoError(t, err)
	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-2", silo("silo-1"), "budi")
	assert.ErrorIs(t, err, activity.ErrDestinationBusy)

	opts, err = f.tr.DestinationOptions(ctx, f.job.ID, activity.DestPlantSilo, "BP-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"silo-3", "silo-4"}, opts)

	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-2", activity.Destination{Type: activity.DestBufferTank, ID: "tank-6"}, "budi")
	assert.NoError(t, err)
}

func TestPauseLine_DefaultReasonAndInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)

	paused, err := f.tr.PauseLine(ctx, f.job.ID, line.ID, "  ", "budi")
	require.NoError(t, err)
	assert.Equal(t, "tanpa keterangan", paused.Pauses[0].Reason)

	_, err = f.tr.PauseLine(ctx, f.job.ID, line.ID, "lagi", "budi")
	assert.ErrorIs(t, err, activity.ErrInvalidTransition)

	stored, err := f.db.GetActivity(ctx, f.job.ID, line.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Pauses, 1)

	_, err = f.tr.ResumeLine(ctx, f.job.ID, "tank-7@silo-1", "budi")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFinishLine_WhilePaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-2", silo("silo-1"), "budi")
	require.NoError(t, err)
	f.clock.advance(time.Minute)
	_, err = f.tr.PauseLine(ctx, f.job.ID, line.ID, "hujan", "budi")
	require.NoError(t, err)
	f.clock.advance(2 * time.Minute)

	done, _, err := f.tr.FinishLine(ctx, f.job.ID, line.ID, "budi")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, done.Paused)
	assert.False(t, done.Pauses[0].Open())

	_, _, err = f.tr.FinishLine(ctx, f.job.ID, line.ID, "budi")
	assert.ErrorIs(t, err, activity.ErrInvalidTransition)
}

func TestReconcile_DoesNotDoubleCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)

	_, err = f.tr.Reconcile(ctx, f.job.ID, line.ID, "admin")
	assert.ErrorIs(t, err, activity.ErrInvalidTransition)

	_, _, err = f.tr.FinishLine(ctx, f.job.ID, line.ID, "budi")
	require.NoError(t, err)
	_, err = f.tr.Reconcile(ctx, f.job.ID, line.ID, "admin")
	assert.ErrorIs(t, err, store.ErrAlreadyCredited)
	_, err = f.tr.Reconcile(ctx, f.job.ID, line.ID, "admin")
	assert.ErrorIs(t, err, store.ErrAlreadyCredited)

	rec, err := f.db.GetStockRecord(ctx, "plant/BP-1", "silo-3")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rec.Quantity)
}

func TestReconcile_CreditsFinishedLineWithoutCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-2", silo("silo-4"), "budi")
	require.NoError(t, err)

	// A finish committed without a credit, as left behind by an older deployment.
	next := line.Clone()
	require.NoError(t, next.Finish(t0.Add(time.Minute)))
	require.NoError(t, f.db.UpdateActivity(ctx, f.job.ID, &next, line.Revision))

	credit, err := f.tr.Reconcile(ctx, f.job.ID, line.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, 15000.0, credit.Balance)
}

func TestCompleteJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tr.CompleteJob(ctx, f.job.ID, "budi")
	assert.ErrorIs(t, err, ErrJobNotReady)

	a, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-1"), "budi")
	require.NoError(t, err)
	b, err := f.tr.StartLine(ctx, f.job.ID, "tank-2", activity.Destination{Type: activity.DestBufferSilo, ID: "bs-1"}, "budi")
	require.NoError(t, err)
	_, _, err = f.tr.FinishLine(ctx, f.job.ID, a.ID, "budi")
	require.NoError(t, err)

	_, err = f.tr.CompleteJob(ctx, f.job.ID, "budi")
	assert.ErrorIs(t, err, ErrJobNotReady, "line b still running")

	_, _, err = f.tr.FinishLine(ctx, f.job.ID, b.ID, "budi")
	require.NoError(t, err)
	st, err := f.tr.LoadJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.True(t, st.CanComplete)

	done, err := f.tr.CompleteJob(ctx, f.job.ID, "budi")
	require.NoError(t, err)
	assert.Equal(t, store.JobDone, done.Status)
	assert.Len(t, done.CompletedLines, 2)

	_, err = f.tr.CompleteJob(ctx, f.job.ID, "budi")
	assert.ErrorIs(t, err, ErrJobDone)
	_, err = f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-2"), "budi")
	assert.ErrorIs(t, err, ErrJobDone)

	st, err = f.tr.LoadJob(ctx, f.job.ID)
	require.NoError(t, err)
	assert.Empty(t, st.Active)
	assert.Len(t, st.Completed, 2)

	// The completed list still resolves lines for reconciliation.
	_, err = f.tr.Reconcile(ctx, f.job.ID, a.ID, "admin")
	assert.ErrorIs(t, err, store.ErrAlreadyCredited)

	buf, err := f.db.GetStockRecord(ctx, store.GroupBufferSilo, "bs-1")
	require.NoError(t, err)
	assert.Equal(t, 15000.0, buf.Quantity)
}

func TestCompleteJob_EmptyTanksOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, created, err := f.tr.ImportJob(ctx, Arrival{Code: "DO-0", Manifest: activity.Manifest{"tank-9": 0}})
	require.NoError(t, err)
	require.True(t, created)

	st, err := f.tr.LoadJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, st.AvailableTanks)
	assert.Empty(t, st.Active)
	assert.True(t, st.CanComplete)

	done, err := f.tr.CompleteJob(ctx, job.ID, "budi")
	require.NoError(t, err)
	assert.Equal(t, store.JobDone, done.Status)
	assert.Empty(t, done.CompletedLines)
	assert.Contains(t, f.em.events, "completed DO-0")
}

func TestLoadJob_FlagsStalePause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)
	_, err = f.tr.PauseLine(ctx, f.job.ID, line.ID, "", "budi")
	require.NoError(t, err)

	f.clock.advance(13 * time.Hour)
	st, err := f.tr.LoadJob(ctx, f.job.ID)
	require.NoError(t, err)
	require.Len(t, st.Active, 1)
	assert.True(t, st.Active[0].StalePause)
	assert.Equal(t, activity.StatusPaused, st.Active[0].Status, "a dangling pause is never closed on load")
	assert.Equal(t, int64(0), st.Active[0].ElapsedSeconds)
}

func TestImportJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, created, err := f.tr.ImportJob(ctx, Arrival{Code: "DO-100", Manifest: activity.Manifest{"tank-1": 1}})
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = f.tr.ImportJob(ctx, Arrival{Code: ""})
	assert.Error(t, err)
	_, _, err = f.tr.ImportJob(ctx, Arrival{Code: "DO-101"})
	assert.Error(t, err)
	_, _, err = f.tr.ImportJob(ctx, Arrival{Code: "DO-102", Manifest: activity.Manifest{"tank-1": -5}})
	assert.Error(t, err)

	assert.Equal(t, []string{"imported DO-100"}, f.em.events)
}

func TestConcurrentFinish_OnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line, err := f.tr.StartLine(ctx, f.job.ID, "tank-1", silo("silo-3"), "budi")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.tr.FinishLine(ctx, f.job.ID, line.ID, "budi")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	rec, err := f.db.GetStockRecord(ctx, "plant/BP-1", "silo-3")
	require.NoError(t, err)
	assert.Equal(t, 20000.0, rec.Quantity)
}
