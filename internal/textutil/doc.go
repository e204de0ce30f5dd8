// Package textutil provides small text helpers shared by the codec and the
// orchestrator: whitespace normalization and filesystem-safe naming for
// derived artifacts.
package textutil
