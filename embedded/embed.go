// Package embedded provides files compiled into the madness binary.
package embedded

import _ "embed"

// FacetSchema is the JSON Schema (draft-07) every cached facet must satisfy.
//
//go:embed facet.schema.json
var FacetSchema []byte
