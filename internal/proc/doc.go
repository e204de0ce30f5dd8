// Package proc runs external tools in their own process group so that
// cancelling a task stops the tool and every child it spawned, and turns their
// line-oriented output into callbacks.
package proc
