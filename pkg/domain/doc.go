/*
Package domain contains the core domain models of the workflow engine.

It defines the unit of work (the token routed through the graph), its lifecycle
state machine, the immutable history records, and routing policies. This package
is kept pure and free of I/O or persistence.

# Key Entities

  - UOW: The token. Carries attributes, a content hash, lock holder and child counters.
  - Status: The lifecycle states and the central table of legal transitions.
  - HistoryEntry: One committed transition, hash-chained per unit of work.
  - RoutingPolicy: Ordered branches evaluated by the routing guard.
  - Workflow: The read-only set of locations (holding areas) and their policies.
*/
package domain
