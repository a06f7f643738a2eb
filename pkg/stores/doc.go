// Package stores provides the evidence store: a SQLite database, migrated
// with embedded golang-migrate scripts, that records enforcement sessions,
// their compliance results and an audit trail.
package stores
