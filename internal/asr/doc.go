// Package asr owns speech recognition: the model catalog, the process-wide
// model cache, the WhisperX command-line engine, and the transcription stage
// that turns an audio file into subtitle segments.
//
// A Cache loads each (size, device) model at most once and hands the same
// Handle to every task that asks for it. Loads run detached from the caller
// that triggered them, so a task cancelled while waiting for a first load does
// not abort the load for the tasks that follow.
package asr
