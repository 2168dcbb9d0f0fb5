// Package reparse keeps the parsed model of a live buffer consistent with the
// buffer while it is edited.
//
// A Coordinator wraps every buffer mutation in BeforeEdit/AfterEdit. Buffers
// below SyncLineThreshold lines reparse inline inside AfterEdit. Larger buffers
// hand a Request to a Scheduler, which waits for a quiet period and runs only
// the last request of a burst on its own worker goroutine.
//
// Guarantees:
//   - at most one reparse executes at any time
//   - Latest blocks while an edit, a queued request or a running reparse is
//     outstanding, so it never observes a model older than the buffer it saw
//   - every published result reaches each Listener exactly once, after it is
//     visible to Latest and before the next reparse starts
//   - an engine error or panic keeps the previous result published and marks
//     the coordinator stale
//
// # Basic Usage
//
//	c := reparse.New(buffer, &reparse.Config{Debounce: 250 * time.Millisecond})
//	defer c.Close()
//
//	if err := c.BeforeEdit(ctx); err != nil {
//	    return err
//	}
//	buffer.Insert(offset, text)
//	if err := c.AfterEdit(); err != nil {
//	    return err
//	}
//
//	model, err := c.LatestModel(ctx)
//
// Listeners run on the goroutine that performed the reparse, and the next
// reparse does not start until they return. A listener therefore reads the
// model from the result it is given, or from Current. It must not block in
// Latest, edit the document or close the coordinator.
package reparse
