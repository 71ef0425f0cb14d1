package middleware

import "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"

// Middleware allows wrapping a UOWStore to add behavior.
type Middleware func(ports.UOWStore) ports.UOWStore

// Chain applies middlewares so that the first one is outermost.
func Chain(store ports.UOWStore, mws ...Middleware) ports.UOWStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
