// Package sweep implements the liveness sweep that returns abandoned tokens
// to the flow. A pass is safe to repeat and safe to run next to live workers.
package sweep
