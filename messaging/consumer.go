package messaging

import (
	"context"
	"log"
	"time"

	"unloadtrack/store"
	"unloadtrack/tracker"
)

// Subscriber is the part of Client the consumer needs.
type Subscriber interface {
	Subscribe(topic string, h Handler) error
}

// JobImporter turns an arrival into a ready job.
type JobImporter interface {
	ImportJob(ctx context.Context, a tracker.Arrival) (*store.Job, bool, error)
}

// Consumer imports jobs announced on the arrivals topic.
type Consumer struct {
	sub      Subscriber
	topic    string
	importer JobImporter
}

func NewConsumer(sub Subscriber, topic string, importer JobImporter) *Consumer {
	return &Consumer{sub: sub, topic: topic, importer: importer}
}

func (c *Consumer) Start() error {
	return c.sub.Subscribe(c.topic, c.handle)
}

func (c *Consumer) handle(topic string, data []byte) {
	env, err := Decode(data)
	if err != nil {
		log.Printf("consumer: %s: %v", topic, err)
		return
	}
	if env.Type != TypeArrival {
		return
	}
	var a tracker.Arrival
	if err := env.DecodePayload(&a); err != nil {
		log.Printf("consumer: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, created, err := c.importer.ImportJob(ctx, a)
	if err != nil {
		log.Printf("consumer: arrival %s from %s: %v", a.Code, env.Source, err)
		return
	}
	if created {
		log.Printf("consumer: job %d (%s) imported from %s", job.ID, job.Code, env.Source)
	}
}
