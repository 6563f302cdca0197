package messaging

import (
	"log"
	"sync"
	"time"

	"unloadtrack/store"
)

// Publisher is the part of Client the drainer needs.
type Publisher interface {
	Publish(topic string, data []byte) error
	IsConnected() bool
}

// OutboxDrainer publishes pending outbox rows on an interval.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	interval time.Duration
	batch    int
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewOutboxDrainer(db *store.DB, pub Publisher, interval time.Duration) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxDrainer{db: db, pub: pub, interval: interval, batch: 100, stopCh: make(chan struct{})}
}

func (d *OutboxDrainer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.DrainOnce()
			}
		}
	}()
}

func (d *OutboxDrainer) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// DrainOnce publishes one batch and returns how many messages were sent.
// It stops at the first publish failure so ordering is kept.
func (d *OutboxDrainer) DrainOnce() int {
	if !d.pub.IsConnected() {
		return 0
	}
	msgs, err := d.db.ListPendingOutbox(d.batch)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return 0
	}
	sent := 0
	for _, m := range msgs {
		if err := d.pub.Publish(m.Topic, m.Payload); err != nil {
			log.Printf("outbox: publish %d (%s) to %s: %v", m.ID, m.MsgType, m.Topic, err)
			d.db.FailOutbox(m.ID, err)
			break
		}
		if err := d.db.AckOutbox(m.ID); err != nil {
			log.Printf("outbox: ack %d: %v", m.ID, err)
		}
		sent++
	}
	return sent
}
