/*
Package observability exports engine activity to operators.

Metrics turns domain hooks into Prometheus counters, and the escalation sinks
deliver domain.Escalation notices to logs, metrics or several targets at once.
*/
package observability
