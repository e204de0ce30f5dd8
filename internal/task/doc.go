// Package task runs transcription requests end to end.
//
// The Orchestrator drives each Task through a fixed state machine:
//
//	Queued -> Downloading -> Deciding -> [Transcribing ->] Formatting -> Done
//
// with Failed and Cancelled reachable from every non-terminal state. The
// Deciding step matches exhaustively on the fetcher's Acquisition: a caption
// track is decoded by the subtitle codec, audio goes through speech
// recognition. Progress is folded into one 0-100 stream (download [0,50],
// recognition [50,95], formatting 100) delivered on Task.Events.
//
// Cancellation is cooperative. It is checked at every state boundary and
// propagated to external processes through the task context; a cancelled or
// failed task never leaves an artifact at its destination.
package task
