// Package workspace manages the open documents of one server session.
//
// A Workspace opens documents from memory or disk, routes edits to them and
// fans every published result out to workspace listeners. With storage it
// journals document lifecycle and reparse outcomes on a background writer;
// with watching it reloads disk-backed documents when their files change.
// LoadDir opens a whole source tree with a bounded worker pool.
package workspace
