package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"unloadtrack/activity"
	"unloadtrack/arrivals"
	"unloadtrack/config"
	"unloadtrack/messaging"
	"unloadtrack/stockstate"
	"unloadtrack/store"
	"unloadtrack/tracker"
)

type LogFunc func(format string, args ...any)

// ReportArchiver stores finished job reports. report.Archiver implements it.
type ReportArchiver interface {
	Put(ctx context.Context, job *store.Job, data []byte) (string, error)
}

type Config struct {
	AppConfig      *config.Config
	ConfigPath     string
	DB             *store.DB
	ArrivalsClient *arrivals.Client
	StockState     *stockstate.Manager
	MsgClient      *messaging.Client
	Archiver       ReportArchiver // nil disables archiving
	LogFunc        LogFunc
	Clock          func() time.Time
}

type Engine struct {
	cfg            *config.Config
	configPath     string
	db             *store.DB
	arrivalsClient *arrivals.Client
	stockState     *stockstate.Manager
	msgClient      *messaging.Client
	archiver       ReportArchiver
	tracker        *tracker.Tracker
	poller         *arrivals.Poller
	Events         *EventBus
	logFn          LogFunc
	now            func() time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	bg       sync.WaitGroup

	connMu            sync.Mutex
	arrivalsConnected bool
	msgConnected      bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}
	stock := c.StockState
	if stock == nil {
		stock = stockstate.NewManager(c.DB, nil)
	}
	return &Engine{
		cfg:            c.AppConfig,
		configPath:     c.ConfigPath,
		db:             c.DB,
		arrivalsClient: c.ArrivalsClient,
		stockState:     stock,
		msgClient:      c.MsgClient,
		archiver:       c.Archiver,
		Events:         NewEventBus(),
		logFn:          logFn,
		now:            clock,
		stopChan:       make(chan struct{}),
	}
}

func (e *Engine) Start() {
	e.tracker = tracker.New(tracker.Config{
		DB:                 e.db,
		Layout:             layoutFromConfig(e.cfg.Layout),
		DefaultPauseReason: e.cfg.Unloading.DefaultPauseReason,
		StalePauseAfter:    e.cfg.Unloading.StalePauseAfter,
		Emitter:            &trackerEmitter{bus: e.Events},
		LogFunc:            tracker.LogFunc(e.logFn),
		Clock:              e.now,
	})

	e.wireEventHandlers()

	if e.arrivalsClient != nil && e.arrivalsClient.BaseURL() != "" {
		e.poller = arrivals.NewPoller(e.arrivalsClient, e.tracker, e.cfg.Arrivals.PollInterval)
		e.poller.Start()
	}

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.logFn("engine: started")
}

// Stop halts the background loops and waits for report archiving in flight.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	if e.poller != nil {
		e.poller.Stop()
	}
	e.bg.Wait()
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                       { return e.db }
func (e *Engine) AppConfig() *config.Config           { return e.cfg }
func (e *Engine) ConfigPath() string                  { return e.configPath }
func (e *Engine) Tracker() *tracker.Tracker           { return e.tracker }
func (e *Engine) StockState() *stockstate.Manager     { return e.stockState }
func (e *Engine) Poller() *arrivals.Poller            { return e.poller }
func (e *Engine) ArrivalsClient() *arrivals.Client    { return e.arrivalsClient }
func (e *Engine) MsgClient() *messaging.Client        { return e.msgClient }
func (e *Engine) ArchiveEnabled() bool                { return e.archiver != nil }
func (e *Engine) Now() time.Time                      { return e.now() }
func (e *Engine) Layout() activity.Layout             { return layoutFromConfig(e.cfg.Layout) }

// ConnectionStatus reports the last observed state of the upstream links.
func (e *Engine) ConnectionStatus() (arrivalsUp, messagingUp bool) {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return e.arrivalsConnected, e.msgConnected
}

func layoutFromConfig(l config.LayoutConfig) activity.Layout {
	return activity.Layout{
		Units:       l.Units,
		BufferSilos: l.BufferSilos,
		BufferTanks: l.BufferTanks,
	}
}

func (e *Engine) checkConnectionStatus() {
	var arrivalsErr error
	arrivalsUp := false
	if e.arrivalsClient != nil && e.arrivalsClient.BaseURL() != "" {
		if _, err := e.arrivalsClient.Ping(); err == nil {
			arrivalsUp = true
		} else {
			arrivalsErr = err
		}
	}
	msgUp := e.msgClient != nil && e.msgClient.IsConnected()

	e.connMu.Lock()
	arrivalsChanged := arrivalsUp != e.arrivalsConnected
	msgChanged := msgUp != e.msgConnected
	e.arrivalsConnected = arrivalsUp
	e.msgConnected = msgUp
	e.connMu.Unlock()

	if arrivalsChanged {
		if arrivalsUp {
			e.Events.Emit(Event{Type: EventArrivalsConnected, Payload: ConnectionEvent{Detail: "arrivals service connected"}})
		} else {
			detail := "arrivals service disconnected"
			if arrivalsErr != nil {
				detail = arrivalsErr.Error()
			}
			e.Events.Emit(Event{Type: EventArrivalsDisconnected, Payload: ConnectionEvent{Detail: detail}})
		}
	}
	if msgChanged {
		if msgUp {
			e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
		} else {
			e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// ReconfigureArrivals applies arrivals config changes live.
func (e *Engine) ReconfigureArrivals() {
	if e.arrivalsClient == nil {
		return
	}
	e.arrivalsClient.Reconfigure(e.cfg.Arrivals.BaseURL, e.cfg.Arrivals.Timeout)
	e.logFn("engine: arrivals reconfigured (%s)", e.cfg.Arrivals.BaseURL)
	if e.poller == nil && e.cfg.Arrivals.BaseURL != "" && e.tracker != nil {
		e.poller = arrivals.NewPoller(e.arrivalsClient, e.tracker, e.cfg.Arrivals.PollInterval)
		e.poller.Start()
	}
	e.checkConnectionStatus()
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured (%s)", e.cfg.Messaging.Backend)
	}
	e.checkConnectionStatus()
}

// SetStockMeta updates status and capacity of a destination.
func (e *Engine) SetStockMeta(ctx context.Context, group, destID, status string, capacity float64, actor string) error {
	if err := e.stockState.SetMeta(ctx, group, destID, status, capacity); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventStockMetaUpdated, Payload: StockMetaUpdatedEvent{
		GroupKey: group,
		DestID:   destID,
		Status:   status,
		Capacity: capacity,
		Actor:    actor,
	}})
	return nil
}

// ApplyCorrection records a manual stock correction.
func (e *Engine) ApplyCorrection(ctx context.Context, c *store.Correction) (before, after float64, err error) {
	before, after, err = e.stockState.ApplyCorrection(ctx, c)
	if err != nil {
		return 0, 0, err
	}
	e.Events.Emit(Event{Type: EventStockCorrected, Payload: StockCorrectedEvent{
		CorrectionID:   c.ID,
		CorrectionType: c.CorrectionType,
		GroupKey:       c.GroupKey,
		DestID:         c.DestID,
		Before:         before,
		After:          after,
		Reason:         c.Reason,
		Actor:          c.Actor,
	}})
	return before, after, nil
}
