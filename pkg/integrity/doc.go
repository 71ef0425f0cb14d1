// Package integrity computes and checks the deterministic content hash of a
// unit of work's attribute set, and verifies the per-token history hash chain.
package integrity
