// Package main hosts the vidscribe CLI.
//
// The Cobra command tree resolves configuration and logging once, wires the
// yt-dlp fetcher, the model cache and the history store into a task
// orchestrator, and renders task progress either as a live bar on a terminal
// or as sampled status lines when output is redirected.
package main
