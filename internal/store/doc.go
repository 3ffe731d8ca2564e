// Package store persists completed study sessions using SQLite.
//
// # Data Model
//
// StudySession is the only persisted entity. A session is keyed by the actor
// who completed it and the client-chosen session ID, so two actors may reuse an
// ID but one actor cannot record the same session twice. The covered classes,
// topics, and key concepts are stored as JSON arrays.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads and a busy timeout
// set on every pooled connection:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
//   - ErrNotFound: requested session does not exist
//   - ErrDuplicateSession: the (actor, session ID) pair is already recorded
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore with a t.TempDir() path
// for integration tests.
package store
