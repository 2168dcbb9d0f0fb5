// Package lsp serves open documents over the Language Server Protocol.
//
// Text synchronization is incremental: each content change of a didChange
// notification becomes one document edit. Every model the coordinator
// publishes is pushed back as textDocument/publishDiagnostics, and
// textDocument/documentSymbol waits for the model that reflects all edits.
package lsp
