package openapi

import "github.com/getkin/kin-openapi/openapi3"

// Component schema names.
const (
	schemaStatus           = "StatusResponse"
	schemaLicenseRequest   = "LicenseRequest"
	schemaLogin            = "LoginResponse"
	schemaReport           = "Report"
	schemaClient           = "Client"
	schemaLicense          = "License"
	schemaOptions          = "ReportOptionsResponse"
	schemaReportURL        = "ReportURLResponse"
	schemaInternalLogin    = "InternalLoginRequest"
	schemaRefreshRequest   = "RefreshRequest"
	schemaSession          = "SessionResponse"
	schemaTokenPair        = "TokenPair"
	schemaSessionClaims    = "SessionClaims"
	securityHMAC           = "hmacSignature"
	componentSchemaRefBase = "#/components/schemas/"
)

func stringSchema(description string) *openapi3.SchemaRef {
	s := openapi3.NewStringSchema()
	s.Description = description
	return &openapi3.SchemaRef{Value: s}
}

func formatSchema(format, description string) *openapi3.SchemaRef {
	s := openapi3.NewStringSchema()
	s.Format = format
	s.Description = description
	return &openapi3.SchemaRef{Value: s}
}

func intSchema(description string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:        &openapi3.Types{"integer"},
		Format:      "int64",
		Description: description,
	}}
}

func boolSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.Schema {
	return &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}
}

func arraySchema(items *openapi3.SchemaRef) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: items}}
}

// statusEnum lists every status value so generated clients can switch on it.
func statusEnum(values ...string) *openapi3.SchemaRef {
	s := openapi3.NewStringSchema()
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return &openapi3.SchemaRef{Value: s}
}
