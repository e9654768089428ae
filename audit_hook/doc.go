// Package audithook is a TaskGrid extension that bridges lifecycle
// events to an immutable audit trail backend.
//
// Every type and task lifecycle hook emits a structured audit event
// through the [Recorder] interface. The extension assigns appropriate
// severity levels (info for normal operations, warning for retries and
// lease reclamations, critical for dead letters) and rich metadata
// (task type, attempts, elapsed time, errors).
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionTaskDeadLettered,
//	        audithook.ActionLeaseReclaimed,
//	    ),
//	)
package audithook
