// Package services defines shared utilities consumed by the pipeline stages
// and the adapters around external tools.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into the task-level error kinds reported to callers (InvalidInput,
//     AcquisitionFailed, TranscriptionFailed, and so on).
//   - Retry classification for transport failures raised by external tools.
//
// Use these helpers when wiring new stage logic so error reporting stays
// uniform across the pipeline.
package services
