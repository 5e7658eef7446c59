package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"instagate/internal/config"
)

func goodSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		VerifyToken:     "a-sufficiently-long-verify-token",
		AppSecret:       "0123456789abcdef0123456789abcdef",
		PageAccessToken: "EAAB-token",
		BusinessID:      "17841400000000000",
		GraphAPIVersion: "v24.0",
		Listen:          ":8080",
		AdminListen:     "127.0.0.1:8081",
		AdminAPIKey:     "a-long-random-admin-key",
		DBPath:          filepath.Join(t.TempDir(), "instagate.db"),
		ReplyText:       "hi",
		SendTimeout:     20 * time.Second,
		MaxBodySize:     1 << 20,
	}
}

func hasIssue(issues []Issue, category, field string) bool {
	for _, i := range issues {
		if i.Category == category && i.Field == field {
			return true
		}
	}
	return false
}

func TestValidateCleanSettings(t *testing.T) {
	r := New(goodSettings(t)).Validate()
	if !r.Valid {
		t.Fatalf("Valid = false, errors: %+v", r.Errors)
	}
	// DB directory exists (TempDir) but the file does not; no storage warning.
	if hasIssue(r.Warnings, "storage", "DB_PATH") {
		t.Errorf("unexpected storage warning: %+v", r.Warnings)
	}
}

func TestValidateBadListenAddrs(t *testing.T) {
	cfg := goodSettings(t)
	cfg.Listen = "not-an-address"
	cfg.AdminListen = cfg.Listen

	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("Valid = true, want errors")
	}
	if !hasIssue(r.Errors, "listen", "LISTEN") {
		t.Errorf("missing LISTEN error: %+v", r.Errors)
	}
	if !hasIssue(r.Errors, "listen", "ADMIN_LISTEN") {
		t.Errorf("missing shared-address error: %+v", r.Errors)
	}
}

func TestValidateGraphVersion(t *testing.T) {
	cfg := goodSettings(t)
	cfg.GraphAPIVersion = "24.0"

	r := New(cfg).Validate()
	if !hasIssue(r.Errors, "graph_api", "GRAPH_API_VERSION") {
		t.Errorf("missing graph version error: %+v", r.Errors)
	}
}

func TestValidateStorageDBPathIsDirectory(t *testing.T) {
	cfg := goodSettings(t)
	cfg.DBPath = t.TempDir()

	r := New(cfg).Validate()
	if !hasIssue(r.Errors, "storage", "DB_PATH") {
		t.Errorf("missing DB_PATH error: %+v", r.Errors)
	}
}

func TestValidateStorageMissingDirWarns(t *testing.T) {
	cfg := goodSettings(t)
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "instagate.db")

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("Valid = false, errors: %+v", r.Errors)
	}
	if !hasIssue(r.Warnings, "storage", "DB_PATH") {
		t.Errorf("missing directory warning: %+v", r.Warnings)
	}
}

func TestValidateTemplates(t *testing.T) {
	cfg := goodSettings(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte("templates:\n  - name: x\n    match: bogus\n    value: v\n    reply: r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.TemplatesPath = path

	r := New(cfg).Validate()
	if !hasIssue(r.Errors, "templates", "TEMPLATES_PATH") {
		t.Errorf("missing templates error: %+v", r.Errors)
	}
}

func TestValidateTemplatesAllDisabled(t *testing.T) {
	cfg := goodSettings(t)
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte("templates:\n  - name: x\n    match: contains\n    value: v\n    reply: r\n    disabled: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.TemplatesPath = path

	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("Valid = false, errors: %+v", r.Errors)
	}
	if !hasIssue(r.Warnings, "templates", "TEMPLATES_PATH") {
		t.Errorf("missing no-active-templates warning: %+v", r.Warnings)
	}
}

func TestWarnAdminAPI(t *testing.T) {
	cfg := goodSettings(t)
	cfg.AdminAPIKey = ""
	r := New(cfg).Validate()
	if !hasIssue(r.Warnings, "admin_api", "ADMIN_API_KEY") {
		t.Errorf("missing disabled-admin warning: %+v", r.Warnings)
	}

	cfg = goodSettings(t)
	cfg.AdminListen = "0.0.0.0:8081"
	r = New(cfg).Validate()
	if !hasIssue(r.Warnings, "admin_api", "ADMIN_LISTEN") {
		t.Errorf("missing non-loopback warning: %+v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	cfg := goodSettings(t)
	out := FormatHuman(New(cfg).Validate())
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("FormatHuman = %q", out)
	}

	cfg.GraphAPIVersion = "bogus"
	out = FormatHuman(New(cfg).Validate())
	if !strings.Contains(out, "Configuration invalid") || !strings.Contains(out, "ERROR [graph_api]") {
		t.Errorf("FormatHuman = %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON(New(goodSettings(t)).Validate())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Errorf("FormatJSON = %q", out)
	}
}
