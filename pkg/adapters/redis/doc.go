// Package redis provides a ports.UOWStore and a ports.DistributedLocker on
// Redis, so several engine replicas can share state.
package redis
