// Package http exposes the engine over a JSON API described by an embedded
// OpenAPI document, and provides a Client for remote workers.
package http
