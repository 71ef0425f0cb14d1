/*
Package guard decides where units of work go and when parents may finish.

RoutingGuard evaluates a location's routing policy. Branch conditions that fail
to parse or evaluate are captured in the shadow log and skipped; the on_error
and default branches catch what is left, and only a fully exhausted policy is
surfaced as an error.

Cerberus is the synchronization guard. A parent passes only when it exists, the
number of terminal children equals its recorded child count, and the parent and
every child are terminal.
*/
package guard
