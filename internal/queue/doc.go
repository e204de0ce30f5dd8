// Package queue keeps the history of finished tasks in SQLite.
//
// Each task id maps to at most one row holding its latest terminal result:
// outcome, artifact path, error kind and message, and which acquisition path
// produced the transcript. Rows are written once a task reaches Done, Failed
// or Cancelled; in-flight tasks are never stored.
//
// The database is a convenience archive. Schema changes bump schemaVersion in
// schema.go and users delete the file to adopt the new layout.
package queue
