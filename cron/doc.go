// Package cron provides scheduled task creation on a cron expression.
//
// Entries are registered in memory at startup and evaluated by a tick
// loop. When an entry comes due, the scheduler creates a task of the
// entry's type through the engine's normal creation path, so schema
// validation, defaults, and fingerprint deduplication all apply. An
// entry whose previous task is still in flight therefore deduplicates
// instead of piling up.
//
// # Entry
//
// An [Entry] represents a recurring task schedule:
//   - Schedule: standard 5-field cron expression or a descriptor like
//     "@every 30s"
//   - TypeName: the registered task type to create when fired
//   - Params: static JSON parameters passed to every created task
//   - Enabled: whether the entry fires
//
// # Registering a schedule
//
// Use engine.RegisterCron to add an entry at startup:
//
//	engine.RegisterCron(eng, "nightly-report", "0 2 * * *",
//	    "report.generate", ReportParams{Format: "pdf"})
//
// Entries can be paused and resumed at runtime with
// [Scheduler.Disable] and [Scheduler.Enable].
package cron
