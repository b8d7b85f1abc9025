// Package openapi generates the OpenAPI 3.1 document for the gateway's HTTP
// surface.
package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"

	"github.com/trustgate/trustgate/internal/model"
)

// Generate builds the API document served at /openapi.json.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "TrustGate API",
			Description: "CSRF token issuance and hashed-API-key administration for the TrustGate access-control gateway.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["adminKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-Admin-Key",
		},
	}
	doc.Components.SecuritySchemes["csrfToken"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-CSRF-Token",
			Description: "Required on mutating requests; obtain from GET /api/v1/csrf-token.",
		},
	}

	codes := make([]interface{}, 0, 8)
	for _, c := range []model.Code{
		model.CodeCSRFOriginInvalid, model.CodeCSRFTokenMissing,
		model.CodeCSRFTokenExpired, model.CodeCSRFTokenInvalid,
		model.CodeInvalidAdminKey, model.CodeExpiredKey,
		model.CodeInactiveKey, model.CodeInvalidKey,
		model.CodeIPNotAllowed, model.CodePermissionDenied,
	} {
		codes = append(codes, string(c))
	}
	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"success": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: codes}},
							"message":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"message_vi": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
						},
					},
				},
			},
		},
	}

	perms := make([]interface{}, 0, len(model.AllPermissions))
	for _, p := range model.AllPermissions {
		perms = append(perms, string(p))
	}
	doc.Components.Schemas["Permission"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: perms},
	}

	doc.Paths = openapi3.NewPaths()

	doc.Paths.Set("/api/v1/csrf-token", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "issueCsrfToken",
			Summary:     "Issue a CSRF token",
			Description: "Returns a short-lived signed token; also set on the X-CSRF-Token response header and mirrored in a non-httpOnly cookie.",
			Tags:        []string{"csrf"},
			Responses:   jsonResponses("Token issued"),
		},
	})

	adminSecurity := openapi3.SecurityRequirements{{"adminKey": {}}}

	doc.Paths.Set("/api/v1/admin/keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listKeys",
			Summary:     "List API keys",
			Tags:        []string{"keys"},
			Security:    &adminSecurity,
			Responses:   jsonResponses("Key records, hashes excluded"),
		},
		Post: &openapi3.Operation{
			OperationID: "createKey",
			Summary:     "Create an API key",
			Description: "The raw key appears in this response once and is unrecoverable afterwards.",
			Tags:        []string{"keys"},
			Security:    &adminSecurity,
			Responses:   jsonResponses("Key created"),
		},
	})

	doc.Paths.Set("/api/v1/admin/keys/{prefix}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			OperationID: "revokeKey",
			Summary:     "Revoke an API key",
			Tags:        []string{"keys"},
			Security:    &adminSecurity,
			Parameters:  prefixParam(),
			Responses:   jsonResponses("Key revoked"),
		},
	})

	doc.Paths.Set("/api/v1/admin/keys/{prefix}/rotate", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "rotateKey",
			Summary:     "Rotate an API key's secret",
			Tags:        []string{"keys"},
			Security:    &adminSecurity,
			Parameters:  prefixParam(),
			Responses:   jsonResponses("New raw key, shown once"),
		},
	})

	doc.Paths.Set("/api/v1/admin/audit", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listAuditEntries",
			Summary:     "Query the audit log",
			Tags:        []string{"audit"},
			Security:    &adminSecurity,
			Responses:   jsonResponses("Matching audit entries"),
		},
	})

	doc.Paths.Set("/api/v1/admin/audit/stats", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "auditStats",
			Summary:     "Aggregate audit counts by action and actor",
			Tags:        []string{"audit"},
			Security:    &adminSecurity,
			Responses:   jsonResponses("Aggregated counts"),
		},
	})

	doc.Paths.Set("/api/v1/admin/audit/export", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "exportAudit",
			Summary:     "Export audit entries",
			Tags:        []string{"audit"},
			Security:    &adminSecurity,
			Responses:   jsonResponses("JSON export"),
		},
	})

	return doc
}

func prefixParam() openapi3.Parameters {
	return openapi3.Parameters{
		{
			Value: &openapi3.Parameter{
				Name:     "prefix",
				In:       "path",
				Required: true,
				Schema:   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}
}

func jsonResponses(okDescription string) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set("200", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &okDescription,
			Content:     openapi3.NewContentWithJSONSchema(&openapi3.Schema{Type: &openapi3.Types{"object"}}),
		},
	})
	errDesc := "Gate rejection"
	responses.Set("default", &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &errDesc,
			Content: openapi3.NewContentWithJSONSchemaRef(
				openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)),
		},
	})
	return responses
}
