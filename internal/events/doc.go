// Package events provides typed in-process change notification.
//
// Components that own mutable state expose a Signal per kind of change.
// Observers register handlers which are invoked synchronously, in
// registration order, on the goroutine that emits. This keeps the
// dependency graph explicit: every recomputation trigger is a visible
// Subscribe call rather than an implicit signal connection.
package events
