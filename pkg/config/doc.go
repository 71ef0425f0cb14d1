// Package config loads a deployment's YAML configuration: store backend,
// sweep and synchronization tuning, server settings and the workflow graph.
package config
