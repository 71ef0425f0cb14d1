// Package worker provides the worker capability and a runner that drives any
// worker through the claim, heartbeat and submit cycle.
package worker
