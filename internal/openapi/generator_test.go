package openapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateValidates(t *testing.T) {
	doc := Generate("1.2.3", "http://127.0.0.1:8081")
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if doc.Info.Version != "1.2.3" {
		t.Errorf("version = %q", doc.Info.Version)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://127.0.0.1:8081" {
		t.Errorf("servers = %+v", doc.Servers)
	}
}

func TestGenerateWithoutServer(t *testing.T) {
	if doc := Generate("dev", ""); len(doc.Servers) != 0 {
		t.Errorf("servers = %+v, want none", doc.Servers)
	}
}

func TestGeneratePaths(t *testing.T) {
	doc := Generate("dev", "")

	posts := []string{
		"/login", "/license/login", "/auth/login", "/auth/license/login",
		"/reports/options",
		"/internal/auth/license/login", "/internal/auth/refresh",
	}
	for _, p := range posts {
		item := doc.Paths.Value(p)
		if item == nil || item.Post == nil {
			t.Errorf("POST %s missing", p)
		}
	}
	for _, p := range []string{"/reports/home", "/reports/client-info", "/reports/{code}"} {
		item := doc.Paths.Value(p)
		if item == nil || item.Get == nil {
			t.Errorf("GET %s missing", p)
		}
	}
}

func TestGenerateInternalRoutesAreSigned(t *testing.T) {
	doc := Generate("dev", "")
	for _, p := range []string{"/internal/auth/license/login", "/internal/auth/refresh"} {
		op := doc.Paths.Value(p).Post
		if op.Security == nil || len(*op.Security) != 1 {
			t.Fatalf("%s: security = %v", p, op.Security)
		}
		if _, ok := (*op.Security)[0][securityHMAC]; !ok {
			t.Errorf("%s: missing %s requirement", p, securityHMAC)
		}
	}
	if doc.Paths.Value("/login").Post.Security != nil {
		t.Error("/login should not require a signature")
	}
}

func TestGenerateLoginAliases(t *testing.T) {
	doc := Generate("dev", "")
	ids := map[string]bool{}
	for _, p := range []string{"/login", "/license/login", "/auth/login", "/auth/license/login"} {
		op := doc.Paths.Value(p).Post
		if ids[op.OperationID] {
			t.Errorf("duplicate operation id %q", op.OperationID)
		}
		ids[op.OperationID] = true
		if op.Responses.Status(429) == nil {
			t.Errorf("%s: no 429 response", p)
		}
	}
	if doc.Paths.Value("/login").Post.Deprecated {
		t.Error("/login should not be deprecated")
	}
	if !doc.Paths.Value("/license/login").Post.Deprecated {
		t.Error("/license/login should be deprecated")
	}
}

func TestGenerateJSON(t *testing.T) {
	raw, err := json.Marshal(Generate("dev", ""))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{
		`"openapi":"3.0.3"`,
		`"#/components/schemas/ReportOptionsResponse"`,
		`"X-Kaizen-Signature"`,
		`"mismatch_or_not_found"`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("document missing %s", want)
		}
	}
}
