package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unloadtrack/activity"
	"unloadtrack/config"
	"unloadtrack/store"
	"unloadtrack/tracker"
)

func TestEnvelope_EncodeDecode(t *testing.T) {
	env, err := NewEnvelope(TypeLineStarted, "plant-1", LineEvent{JobID: 3, LineID: "tank-1@silo-3", Status: "running"})
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)

	data, err := env.Encode()
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, "plant-1", got.Source)

	var ev LineEvent
	require.NoError(t, got.DecodePayload(&ev))
	assert.Equal(t, "tank-1@silo-3", ev.LineID)

	_, err = Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEventTopic(t *testing.T) {
	assert.Equal(t, "plant/unloading/line", EventTopic("plant/unloading", TypeLinePaused))
	assert.Equal(t, "plant/unloading/stock", EventTopic("plant/unloading", TypeStockCredited))
	assert.Equal(t, "plant/unloading/arrival", EventTopic("plant/unloading", TypeArrival))
	assert.Equal(t, "plant.unloading.job", kafkaTopic(EventTopic("plant/unloading", TypeJobCompleted)))
}

type fakePublisher struct {
	connected bool
	failOn    int
	sent      []string
}

func (f *fakePublisher) IsConnected() bool { return f.connected }
func (f *fakePublisher) Publish(topic string, data []byte) error {
	if f.failOn > 0 && len(f.sent)+1 == f.failOn {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, topic+" "+string(data))
	return nil
}

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "msg.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOutboxDrainer_DrainOnce(t *testing.T) {
	db := openDB(t)
	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, db.EnqueueOutbox("plant/unloading/line", []byte(p), TypeLineStarted, "DO-1"))
	}

	pub := &fakePublisher{}
	d := NewOutboxDrainer(db, pub, 0)
	assert.Equal(t, 0, d.DrainOnce(), "nothing is sent while disconnected")

	pub.connected = true
	pub.failOn = 2
	assert.Equal(t, 1, d.DrainOnce())
	pending, err := db.ListPendingOutbox(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].Attempts)

	pub.failOn = 0
	assert.Equal(t, 2, d.DrainOnce())
	assert.Equal(t, []string{"plant/unloading/line a", "plant/unloading/line b", "plant/unloading/line c"}, pub.sent)
	assert.Equal(t, 0, d.DrainOnce())
}

func TestOutboxDrainer_StartStop(t *testing.T) {
	db := openDB(t)
	d := NewOutboxDrainer(db, &fakePublisher{connected: true}, 0)
	d.Start()
	d.Stop()
}

type fakeSubscriber struct {
	topic string
	h     Handler
}

func (f *fakeSubscriber) Subscribe(topic string, h Handler) error {
	f.topic, f.h = topic, h
	return nil
}

type fakeImporter struct {
	arrivals []tracker.Arrival
}

func (f *fakeImporter) ImportJob(ctx context.Context, a tracker.Arrival) (*store.Job, bool, error) {
	if a.Code == "bad" {
		return nil, false, errors.New("rejected")
	}
	f.arrivals = append(f.arrivals, a)
	return &store.Job{ID: int64(len(f.arrivals)), Code: a.Code}, true, nil
}

func TestConsumer_ImportsArrivals(t *testing.T) {
	sub := &fakeSubscriber{}
	imp := &fakeImporter{}
	c := NewConsumer(sub, "plant/arrivals", imp)
	require.NoError(t, c.Start())
	assert.Equal(t, "plant/arrivals", sub.topic)

	env, err := NewEnvelope(TypeArrival, "gate", tracker.Arrival{Code: "DO-7", Vessel: "KM Baru", Manifest: activity.Manifest{"tank-1": 100}})
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	sub.h("plant/arrivals", data)

	other, err := NewEnvelope(TypeLineStarted, "gate", LineEvent{})
	require.NoError(t, err)
	data2, err := other.Encode()
	require.NoError(t, err)
	sub.h("plant/arrivals", data2)
	sub.h("plant/arrivals", []byte("garbage"))

	bad, err := NewEnvelope(TypeArrival, "gate", tracker.Arrival{Code: "bad"})
	require.NoError(t, err)
	data3, err := bad.Encode()
	require.NoError(t, err)
	sub.h("plant/arrivals", data3)

	require.Len(t, imp.arrivals, 1)
	assert.Equal(t, "DO-7", imp.arrivals[0].Code)
	assert.Equal(t, 100.0, imp.arrivals[0].Manifest["tank-1"])
}

func TestClient_PublishWhileDisconnected(t *testing.T) {
	cfg := config.Defaults().Messaging
	cfg.MQTT.Broker = "127.0.0.1"
	cfg.MQTT.Port = 1
	c := NewClient(&cfg)
	defer c.Close()
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Publish("plant/unloading/line", []byte("x")), ErrNotConnected)
	assert.Equal(t, "mqtt", c.Backend())
}
