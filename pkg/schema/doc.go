// Package schema validates unit-of-work attributes against a declared contract.
//
// A location may require workers to hand back certain attributes. Contracts are
// written as type strings and parsed into a Schema:
//
//	s, err := schema.ParseTypeMap(map[string]string{
//	    "approved": "bool",
//	    "amount":   "float",
//	    "tags":     "[string]",
//	    "note":     "string?",
//	})
//
// A trailing "?" makes a field optional: it may be absent or null, but when
// present it must match. Values are checked as they arrive from JSON, so whole
// float64 numbers satisfy "int".
//
//	if err := schema.Validate(s, uow.Attributes); err != nil {
//	    for _, e := range schema.ValidationErrors(err) { ... }
//	}
package schema
