/*
Package dsl provides a Go DSL for programmatically constructing Chameleon workflows.

It allows developers to declare locations and routing policies with a fluent builder
instead of a YAML file. This is useful for embedding the engine, for tests and for
generating workflows dynamically.

Example usage:

	b := dsl.New("expenses")

	b.Add("intake").
		Role("clerk").
		Policy("triage").
		Branch("amount > 1000", "approval").
		Go("paid")

	b.Add("approval").
		Role("manager").
		Policy("approve").
		Branch("approved == true", "paid").
		Error("intake")

	b.Add("paid").Role("archivist").Terminal()

	wf, err := b.Build()
	// ... pass wf to engine.New(...)
*/
package dsl
