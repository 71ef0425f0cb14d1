// Package sqlite provides a durable ports.UOWStore on SQLite using the
// pure-Go modernc.org/sqlite driver.
package sqlite
