/*
Package ports defines the driven ports (interfaces) of the Chameleon engine.

These interfaces decouple the lifecycle core from storage and notification
backends.

# Key Interfaces

  - UOWStore: persists units of work with their history and audit trails.
  - DistributedLocker: serializes writes to one unit of work across replicas.
  - EscalationSink: receives policy exhaustion, integrity drift and blocked synchronization events.

RunUOWStoreContract verifies any UOWStore implementation against the shared contract.
*/
package ports
