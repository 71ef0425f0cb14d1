/*
Package chameleon is a workflow engine that moves units of work (tokens)
through a graph of locations served by human, AI and automated workers.

Every change to a token is committed as one versioned write with an
append-only, hash-chained history entry. Routing policies decide where a token
goes after each submission, a synchronization guard holds a root until all of
its children are done, and a liveness sweep reclaims tokens from workers that
stopped sending heartbeats.

# Usage

Build a System from a configuration file and drive it through its engine, its
HTTP API or its MCP tools.

	package main

	import (
		"context"
		"log"

		"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
		"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/config"
	)

	func main() {
		cfg, err := config.Load("chameleon.yaml")
		if err != nil {
			log.Fatal(err)
		}
		sys, err := chameleon.New(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer sys.Close()

		ctx := context.Background()
		root, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 120}, "received")
		if err != nil {
			log.Fatal(err)
		}
		log.Println("queued", root.ID)
	}
*/
package chameleon
