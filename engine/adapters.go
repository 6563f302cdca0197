package engine

import (
	"unloadtrack/activity"
	"unloadtrack/store"
)

// trackerEmitter bridges the tracker package's emitter interface to the EventBus.
type trackerEmitter struct {
	bus *EventBus
}

func (e *trackerEmitter) EmitJobImported(jobID int64, code, vessel, material string) {
	e.bus.Emit(Event{Type: EventJobImported, Payload: JobImportedEvent{
		JobID:    jobID,
		Code:     code,
		Vessel:   vessel,
		Material: material,
	}})
}

func (e *trackerEmitter) EmitLineStarted(jobID int64, line activity.Line, actor string) {
	e.bus.Emit(Event{Type: EventLineStarted, Payload: LineEvent{JobID: jobID, Line: line, Actor: actor}})
}

func (e *trackerEmitter) EmitLinePaused(jobID int64, line activity.Line, reason, actor string) {
	e.bus.Emit(Event{Type: EventLinePaused, Payload: LineEvent{JobID: jobID, Line: line, Reason: reason, Actor: actor}})
}

func (e *trackerEmitter) EmitLineResumed(jobID int64, line activity.Line, actor string) {
	e.bus.Emit(Event{Type: EventLineResumed, Payload: LineEvent{JobID: jobID, Line: line, Actor: actor}})
}

func (e *trackerEmitter) EmitLineFinished(jobID int64, line activity.Line, actor string) {
	e.bus.Emit(Event{Type: EventLineFinished, Payload: LineEvent{JobID: jobID, Line: line, Actor: actor}})
}

func (e *trackerEmitter) EmitStockCredited(jobID int64, credit store.StockCredit, actor string) {
	e.bus.Emit(Event{Type: EventStockCredited, Payload: StockCreditedEvent{JobID: jobID, Credit: credit, Actor: actor}})
}

func (e *trackerEmitter) EmitJobCompleted(jobID int64, code string, lines int, actor string) {
	e.bus.Emit(Event{Type: EventJobCompleted, Payload: JobCompletedEvent{
		JobID: jobID,
		Code:  code,
		Lines: lines,
		Actor: actor,
	}})
}
