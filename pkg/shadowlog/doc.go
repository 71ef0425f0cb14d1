// Package shadowlog captures expression and routing failures in a bounded,
// queryable ring buffer so that silently-recovered errors stay observable.
package shadowlog
