// Package swagger embeds the OpenAPI document of the users API.
package swagger

import _ "embed"

// Spec is the OpenAPI 2.0 document served at /openapi.json.
//
//go:embed user.swagger.json
var Spec []byte
