package tracker

import (
	"unloadtrack/activity"
	"unloadtrack/store"
)

// Emitter is the interface adapters must satisfy to bridge tracker events to the engine.
type Emitter interface {
	EmitJobImported(jobID int64, code, vessel, material string)
	EmitLineStarted(jobID int64, line activity.Line, actor string)
	EmitLinePaused(jobID int64, line activity.Line, reason, actor string)
	EmitLineResumed(jobID int64, line activity.Line, actor string)
	EmitLineFinished(jobID int64, line activity.Line, actor string)
	EmitStockCredited(jobID int64, credit store.StockCredit, actor string)
	EmitJobCompleted(jobID int64, code string, lines int, actor string)
}
