package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"unloadtrack/activity"
	"unloadtrack/config"
	"unloadtrack/store"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func finishedLine(t *testing.T) activity.Line {
	t.Helper()
	l, err := activity.Start(activity.Manifest{"tank-1": 20000}, nil, "tank-1",
		activity.Destination{Type: activity.DestPlantSilo, ID: "silo-3", Unit: "BP-1"}, t0)
	require.NoError(t, err)
	require.NoError(t, l.Pause("istirahat", "", t0.Add(90*time.Second)))
	require.NoError(t, l.Resume(t0.Add(150*time.Second)))
	require.NoError(t, l.Finish(t0.Add(300*time.Second)))
	return *l
}

func TestWriteJobReport(t *testing.T) {
	job := &store.Job{Code: "DO-100", Vessel: "KM Sejahtera", Material: "CPO", Status: store.JobReady,
		Manifest: activity.Manifest{"tank-1": 20000, "tank-2": 15000}}
	running, err := activity.Start(job.Manifest, nil, "tank-2", activity.Destination{Type: activity.DestBufferTank, ID: "tank-6"}, t0)
	require.NoError(t, err)
	lines := []activity.Line{finishedLine(t), *running}

	var buf bytes.Buffer
	require.NoError(t, WriteJobReport(&buf, job, lines, t0.Add(10*time.Minute)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue(sheet, cell)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "DO-100", get("B1"))
	assert.Equal(t, "KM Sejahtera", get("B2"))
	assert.Equal(t, "Source tank", get("B8"))
	assert.Equal(t, "tank-1", get("B9"))
	assert.Equal(t, "00:01:00", get("I9"))
	assert.Equal(t, "00:04:00", get("J9"))
	assert.Equal(t, "20000", get("K9"))
	assert.Equal(t, "tank-2", get("B10"))
	assert.Equal(t, "running", get("F10"))
	assert.Equal(t, "00:10:00", get("J10"))
	assert.Equal(t, "0", get("K10"))
	assert.Equal(t, "Total", get("J11"))
	assert.Equal(t, "20000", get("K11"))
}

func TestBuildJobReport_NoLines(t *testing.T) {
	data, err := BuildJobReport(&store.Job{Code: "DO-1"}, nil, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "00:00:00", formatSeconds(0))
	assert.Equal(t, "01:01:01", formatSeconds(3661))
	assert.Equal(t, "26:00:00", formatSeconds(26*3600))
}

func TestObjectKey(t *testing.T) {
	done := time.Date(2026, 4, 9, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "reports/2026/04/DO-9.xlsx", ObjectKey(&store.Job{Code: "DO-9", CompletedAt: &done, CreatedAt: t0}))
	assert.Equal(t, "reports/2026/03/DO-9.xlsx", ObjectKey(&store.Job{Code: "DO-9", CreatedAt: t0}))
}

func TestNewArchiver(t *testing.T) {
	a, err := NewArchiver(config.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)

	_, err = NewArchiver(config.ArchiveConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	a, err = NewArchiver(config.ArchiveConfig{Endpoint: "127.0.0.1:1", Bucket: "reports", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = a.Put(ctx, &store.Job{Code: "DO-1", CreatedAt: t0}, []byte("x"))
	assert.Error(t, err)
}
