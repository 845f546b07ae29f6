// Package openapi builds the OpenAPI description of the auth service.
package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/signature"
)

// builder keeps the component schemas so references carry their value and
// the document validates without a loader pass.
type builder struct {
	doc *openapi3.T
}

func (b *builder) ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(componentSchemaRefBase+name, b.doc.Components.Schemas[name].Value)
}

func (b *builder) define(name string, s *openapi3.Schema) {
	b.doc.Components.Schemas[name] = &openapi3.SchemaRef{Value: s}
}

// Generate returns the document for the auth service. An empty baseURL
// leaves the servers list empty.
func Generate(version, baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "Kaizen license gate",
			Description: "License validation, report resolution and session minting for embedded dashboards.",
			Version:     version,
		},
		Paths: openapi3.NewPaths(),
	}
	if baseURL != "" {
		doc.Servers = openapi3.Servers{{URL: baseURL}}
	}
	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		securityHMAC: &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        signature.HeaderSignature,
			Description: "Hex HMAC-SHA256 of the " + signature.HeaderTimestamp + " value, a dot, the " +
				signature.HeaderNonce + " value, a dot, and the raw body. Each nonce is accepted once.",
		}},
	}
	doc.Components = &components

	b := &builder{doc: doc}
	b.defineSchemas()
	b.addPaths()
	return doc
}

func (b *builder) defineSchemas() {
	b.define(schemaStatus, objectSchema(openapi3.Schemas{
		"status": statusEnum(allStatuses()...),
		"error":  statusEnum(allStatuses()...),
		"until":  formatSchema("date-time", "End of the lockout, for rate-limited."),
	}, "status"))

	b.define(schemaLicenseRequest, objectSchema(openapi3.Schemas{
		"license": stringSchema("License string as typed; whitespace and case are normalized."),
	}, "license"))

	b.define(schemaLogin, objectSchema(openapi3.Schemas{
		"status": statusEnum(string(model.StatusOK)),
		"prefix": stringSchema("Client prefix of the license."),
	}, "status", "prefix"))

	b.define(schemaReport, objectSchema(openapi3.Schemas{
		"code":      stringSchema(""),
		"name":      stringSchema(""),
		"isDefault": boolSchema(),
		"url":       formatSchema("uri", "Embed URL."),
	}, "code", "name", "isDefault", "url"))

	b.define(schemaClient, objectSchema(openapi3.Schemas{
		"prefix": stringSchema(""),
		"name":   stringSchema(""),
	}, "prefix", "name"))

	b.define(schemaLicense, objectSchema(openapi3.Schemas{
		"status":     stringSchema("Outcome for the client's current license."),
		"expiryDate": formatSchema("date", "UTC calendar date of expiry."),
		"expiresAt":  formatSchema("date-time", "Exact expiry instant."),
	}, "status"))

	defaultCode := openapi3.NewStringSchema()
	defaultCode.Nullable = true
	b.define(schemaOptions, objectSchema(openapi3.Schemas{
		"status":            statusEnum(string(model.StatusOK)),
		"client":            b.ref(schemaClient),
		"license":           b.ref(schemaLicense),
		"defaultReportCode": &openapi3.SchemaRef{Value: defaultCode},
		"reports":           arraySchema(b.ref(schemaReport)),
	}, "status", "client", "license", "defaultReportCode", "reports"))

	b.define(schemaReportURL, objectSchema(openapi3.Schemas{
		"status":     statusEnum(string(model.StatusOK)),
		"url":        formatSchema("uri", ""),
		"reportCode": stringSchema(""),
	}, "status", "url", "reportCode"))

	b.define(schemaInternalLogin, objectSchema(openapi3.Schemas{
		"license": stringSchema(""),
		"meta": &openapi3.SchemaRef{Value: objectSchema(openapi3.Schemas{
			"clientIp":      stringSchema("Browser address seen by the edge."),
			"userAgent":     stringSchema(""),
			"edgeRequestId": stringSchema(""),
		})},
	}, "license"))

	b.define(schemaRefreshRequest, objectSchema(openapi3.Schemas{
		"refreshToken": stringSchema(""),
	}, "refreshToken"))

	b.define(schemaTokenPair, objectSchema(openapi3.Schemas{
		"accessToken":  stringSchema("HS256 JWT, typ access."),
		"refreshToken": stringSchema("HS256 JWT, typ refresh."),
	}, "accessToken", "refreshToken"))

	b.define(schemaSessionClaims, objectSchema(openapi3.Schemas{
		"sub":      stringSchema("License id."),
		"tenantId": stringSchema("Client prefix."),
		"scope":    arraySchema(stringSchema("")),
	}, "sub", "tenantId", "scope"))

	b.define(schemaSession, objectSchema(openapi3.Schemas{
		"status":     statusEnum(string(model.StatusOK)),
		"prefix":     stringSchema(""),
		"claims":     b.ref(schemaSessionClaims),
		"tokens":     b.ref(schemaTokenPair),
		"accessTtl":  intSchema("Access token lifetime in seconds."),
		"refreshTtl": intSchema("Refresh token lifetime in seconds."),
	}, "status", "claims", "tokens", "accessTtl", "refreshTtl"))
}

func allStatuses() []string {
	all := []model.Status{
		model.StatusOK,
		model.StatusMissingLicense, model.StatusInvalidLicense, model.StatusMissingPrefix, model.StatusInvalidBody,
		model.StatusMismatch, model.StatusExpired, model.StatusRevoked, model.StatusNotActive,
		model.StatusRateLimited,
		model.StatusNotFound, model.StatusNoDefault, model.StatusReportNotFound,
		model.StatusNoSession, model.StatusRefreshFailed, model.StatusInvalidSignature,
		model.StatusForbidden, model.StatusBadAuthResponse, model.StatusServerError,
	}
	out := make([]string, len(all))
	for i, s := range all {
		out[i] = string(s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func (b *builder) addPaths() {
	loginFailures := []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError}

	login := b.operation("licenseLogin", "Validate a license", "license",
		b.body(schemaLicenseRequest), http.StatusOK, schemaLogin, loginFailures...)
	for i, p := range []string{"/login", "/license/login", "/auth/login", "/auth/license/login"} {
		op := *login
		if i > 0 {
			op.OperationID = login.OperationID + "Alias" + strconv.Itoa(i)
			op.Deprecated = p != "/auth/license/login"
		}
		b.doc.Paths.Set(p, &openapi3.PathItem{Post: &op})
	}

	b.doc.Paths.Set("/reports/options", &openapi3.PathItem{Post: b.operation("reportOptions",
		"Validate a license and list its reports", "reports",
		b.body(schemaLicenseRequest), http.StatusOK, schemaOptions, loginFailures...)})

	prefix := openapi3.Parameters{{Value: openapi3.NewQueryParameter("prefix").
		WithDescription("Client prefix.").WithSchema(openapi3.NewStringSchema())}}

	home := b.operation("reportHome", "Resolve the default report", "reports", nil,
		http.StatusOK, schemaReportURL, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError)
	home.Parameters = prefix
	b.doc.Paths.Set("/reports/home", &openapi3.PathItem{Get: home})

	info := b.operation("clientInfo", "Describe a client and its current license", "reports", nil,
		http.StatusOK, schemaOptions, http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError)
	info.Parameters = prefix
	b.doc.Paths.Set("/reports/client-info", &openapi3.PathItem{Get: info})

	byCode := b.operation("reportByCode", "Resolve a visible report by code", "reports", nil,
		http.StatusOK, schemaReportURL, http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError)
	byCode.Parameters = append(openapi3.Parameters{{Value: openapi3.NewPathParameter("code").
		WithSchema(openapi3.NewStringSchema())}}, prefix...)
	b.doc.Paths.Set("/reports/{code}", &openapi3.PathItem{Get: byCode})

	signed := openapi3.SecurityRequirements{{securityHMAC: []string{}}}

	internalLogin := b.operation("internalLogin", "Log in on behalf of the edge and mint a session", "internal",
		b.body(schemaInternalLogin), http.StatusOK, schemaSession, loginFailures...)
	internalLogin.Security = &signed
	b.doc.Paths.Set("/internal/auth/license/login", &openapi3.PathItem{Post: internalLogin})

	refresh := b.operation("internalRefresh", "Rotate a session", "internal",
		b.body(schemaRefreshRequest), http.StatusOK, schemaSession, http.StatusUnauthorized, http.StatusInternalServerError)
	refresh.Security = &signed
	b.doc.Paths.Set("/internal/auth/refresh", &openapi3.PathItem{Post: refresh})
}

func (b *builder) body(schema string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
		WithRequired(true).
		WithJSONSchemaRef(b.ref(schema))}
}

func (b *builder) operation(id, summary, tag string, body *openapi3.RequestBodyRef, okCode int, okSchema string, failures ...int) *openapi3.Operation {
	opts := []openapi3.NewResponsesOption{openapi3.WithStatus(okCode, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(http.StatusText(okCode)).
			WithJSONSchemaRef(b.ref(okSchema)),
	})}
	for _, code := range failures {
		opts = append(opts, openapi3.WithStatus(code, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(http.StatusText(code)).
				WithJSONSchemaRef(b.ref(schemaStatus)),
		}))
	}
	return &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Tags:        []string{tag},
		RequestBody: body,
		Responses:   openapi3.NewResponses(opts...),
	}
}
