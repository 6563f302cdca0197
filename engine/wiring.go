package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"unloadtrack/arrivals"
	"unloadtrack/messaging"
	"unloadtrack/report"
)

func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(JobImportedEvent)
		e.db.AppendAudit("job", jobEntity(ev.JobID), "imported", "", fmt.Sprintf("%s %s %s", ev.Code, ev.Vessel, ev.Material), "system")
		e.publish(messaging.TypeJobImported, ev.Code, messaging.JobEvent{
			JobID:    ev.JobID,
			JobCode:  ev.Code,
			Vessel:   ev.Vessel,
			Material: ev.Material,
		})
	}, EventJobImported)

	// Line transitions: audit and publish
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(LineEvent)
		action, msgType := lineAction(evt.Type)
		detail := string(ev.Line.Status)
		if ev.Reason != "" {
			detail += ": " + ev.Reason
		}
		e.db.AppendAudit("line", lineEntity(ev.JobID, ev.Line.ID), action, "", detail, ev.Actor)
		code := e.jobCode(ev.JobID)
		e.publish(msgType, code, messaging.LineEvent{
			JobID:      ev.JobID,
			JobCode:    code,
			LineID:     ev.Line.ID,
			SourceTank: ev.Line.SourceTank,
			DestType:   string(ev.Line.Dest.Type),
			DestID:     ev.Line.Dest.ID,
			DestUnit:   ev.Line.Dest.Unit,
			Status:     string(ev.Line.Status),
			Reason:     ev.Reason,
			StartedAt:  ev.Line.StartedAt,
			EndedAt:    ev.Line.EndedAt,
			PausedSec:  int64(ev.Line.Paused / time.Second),
			Actor:      ev.Actor,
		})
	}, EventLineStarted, EventLinePaused, EventLineResumed, EventLineFinished)

	// Stock credits: refresh the cache, audit and publish
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockCreditedEvent)
		c := ev.Credit
		e.stockState.Refresh(context.Background(), c.GroupKey)
		e.db.AppendAudit("stock", c.GroupKey+"/"+c.DestID, "credited", "",
			fmt.Sprintf("+%s from %s (balance %s)", formatQty(c.Quantity), c.Key, formatQty(c.Balance)), ev.Actor)
		e.publish(messaging.TypeStockCredited, e.jobCode(ev.JobID), messaging.StockEvent{
			JobID:    ev.JobID,
			LineID:   c.LineID,
			GroupKey: c.GroupKey,
			DestID:   c.DestID,
			Quantity: c.Quantity,
			Balance:  c.Balance,
			Ref:      c.Ref,
			Actor:    ev.Actor,
		})
	}, EventStockCredited)

	// Corrections: the stock manager has already refreshed the group
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockCorrectedEvent)
		e.db.AppendAudit("correction", strconv.FormatInt(ev.CorrectionID, 10), ev.CorrectionType,
			formatQty(ev.Before), formatQty(ev.After), ev.Actor)
		e.publish(messaging.TypeStockCorrect, ev.GroupKey+"/"+ev.DestID, messaging.StockEvent{
			GroupKey: ev.GroupKey,
			DestID:   ev.DestID,
			Quantity: ev.After - ev.Before,
			Balance:  ev.After,
			Actor:    ev.Actor,
		})
	}, EventStockCorrected)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(StockMetaUpdatedEvent)
		e.db.AppendAudit("stock", ev.GroupKey+"/"+ev.DestID, "meta", "",
			fmt.Sprintf("status=%s capacity=%s", ev.Status, formatQty(ev.Capacity)), ev.Actor)
	}, EventStockMetaUpdated)

	// Job completion: audit, publish, then archive and acknowledge off the request path
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(JobCompletedEvent)
		e.logFn("engine: job %d (%s) completed", ev.JobID, ev.Code)
		e.db.AppendAudit("job", jobEntity(ev.JobID), "completed", "", fmt.Sprintf("%d lines", ev.Lines), ev.Actor)
		e.publish(messaging.TypeJobCompleted, ev.Code, messaging.JobEvent{
			JobID:   ev.JobID,
			JobCode: ev.Code,
			Lines:   ev.Lines,
			Actor:   ev.Actor,
		})
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			e.handleJobCompleted(ev)
		}()
	}, EventJobCompleted)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ReportArchivedEvent)
		e.db.AppendAudit("job", jobEntity(ev.JobID), "report-archived", "", ev.Key, "system")
	}, EventReportArchived)

	// Connection changes: log and audit
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s: %s", evt.Type, ev.Detail)
		e.db.AppendAudit("system", "connection", evt.Type.String(), "", ev.Detail, "system")
	}, EventArrivalsConnected, EventArrivalsDisconnected, EventMessagingConnected, EventMessagingDisconnected)
}

// handleJobCompleted archives the job report and acknowledges the job upstream.
// Both are best effort; the job is already done either way.
func (e *Engine) handleJobCompleted(ev JobCompletedEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := e.db.GetJob(ctx, ev.JobID)
	if err != nil {
		e.logFn("engine: job %d completed but could not be loaded: %v", ev.JobID, err)
		return
	}

	if e.archiver != nil {
		data, err := report.BuildJobReport(job, job.CompletedLines, e.now())
		if err != nil {
			e.logFn("engine: build report for %s: %v", job.Code, err)
		} else if key, err := e.archiver.Put(ctx, job, data); err != nil {
			e.logFn("engine: archive report for %s: %v", job.Code, err)
		} else {
			e.logFn("engine: archived report for %s as %s", job.Code, key)
			e.Events.Emit(Event{Type: EventReportArchived, Payload: ReportArchivedEvent{JobID: job.ID, Code: job.Code, Key: key}})
		}
	}

	if e.arrivalsClient != nil && e.arrivalsClient.BaseURL() != "" {
		completedAt := e.now()
		if job.CompletedAt != nil {
			completedAt = *job.CompletedAt
		}
		err := e.arrivalsClient.AckJob(&arrivals.AckRequest{
			Code:        job.Code,
			CompletedAt: completedAt.UTC().Format(time.RFC3339),
			Lines:       len(job.CompletedLines),
		})
		if err != nil {
			e.logFn("engine: ack %s upstream: %v", job.Code, err)
		}
	}
}

// publish queues a plant bus message in the outbox; the drainer sends it.
func (e *Engine) publish(msgType, key string, payload any) {
	env, err := messaging.NewEnvelope(msgType, e.cfg.PlantID, payload)
	if err != nil {
		e.logFn("engine: build %s envelope: %v", msgType, err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		e.logFn("engine: encode %s envelope: %v", msgType, err)
		return
	}
	topic := messaging.EventTopic(e.cfg.Messaging.EventsTopicPrefix, msgType)
	if err := e.db.EnqueueOutbox(topic, data, msgType, key); err != nil {
		e.logFn("engine: enqueue %s: %v", msgType, err)
	}
}

func (e *Engine) jobCode(jobID int64) string {
	job, err := e.db.GetJob(context.Background(), jobID)
	if err != nil {
		return jobEntity(jobID)
	}
	return job.Code
}

func lineAction(t EventType) (action, msgType string) {
	switch t {
	case EventLineStarted:
		return "started", messaging.TypeLineStarted
	case EventLinePaused:
		return "paused", messaging.TypeLinePaused
	case EventLineResumed:
		return "resumed", messaging.TypeLineResumed
	default:
		return "finished", messaging.TypeLineFinished
	}
}

func jobEntity(jobID int64) string { return strconv.FormatInt(jobID, 10) }

func lineEntity(jobID int64, lineID string) string {
	return fmt.Sprintf("%d/%s", jobID, lineID)
}

func formatQty(q float64) string { return strconv.FormatFloat(q, 'f', -1, 64) }
