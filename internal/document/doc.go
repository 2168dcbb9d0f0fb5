// Package document provides the editable text of an open Go source file and
// wires it to a reparse.Coordinator.
//
// Edits are byte-range replacements (Replace, Insert, Delete, SetText) or
// LSP-style line/character ranges (ApplyChange, Apply). Range errors are
// reported before the coordinator is touched, so a rejected edit never makes
// the model stale.
package document
