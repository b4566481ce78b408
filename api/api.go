// Package api embeds the OpenAPI document of the analyst HTTP API.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 document in YAML.
//
//go:embed openapi.yaml
var OpenAPI []byte
