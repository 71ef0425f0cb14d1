/*
Package persistence is the traceability layer and the sole writer of units of work.

Every change is committed with an optimistic version check and, when the
status, location or content hash moves, a history entry whose previous hash
links to the prior entry. Illegal transitions and integrity drift never reach
the history; they are kept in a separate audit trail.

Writes to the same unit of work are serialized in-process by a reference
counted lock map, and across replicas by an optional ports.DistributedLocker.
*/
package persistence
