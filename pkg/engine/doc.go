// Package engine is the coordinator. It ties the persistence service, the
// routing guard and the Cerberus synchronizer to one workflow definition and
// exposes the operations workers and operators call: claim, submit, spawn,
// report failure, remediate, finalize and archive.
package engine
