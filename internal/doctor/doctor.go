// Package doctor runs preflight checks over instagate settings, so a broken
// deployment is caught before the webhook endpoint goes live.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"instagate/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates loaded settings beyond what env parsing enforces.
type Doctor struct {
	cfg *config.Settings
}

func New(cfg *config.Settings) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateCredentials(r)
	d.validateListenAddrs(r)
	d.validateGraphVersion(r)
	d.validateStorage(r)
	d.validateTemplates(r)
	d.warnTimeouts(r)
	d.warnAdminAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateCredentials sanity-checks the Meta platform secrets. Values are
// never echoed into the report.
func (d *Doctor) validateCredentials(r *Result) {
	if len(d.cfg.AppSecret) < 16 {
		d.addWarning(r, "credentials", "APP_SECRET",
			"app secret is shorter than a real Meta app secret; signature checks will reject all deliveries if it is wrong")
	}
	if len(d.cfg.VerifyToken) < 8 {
		d.addWarning(r, "credentials", "VERIFY_TOKEN",
			"verify token is very short; use a long random value")
	}
	if d.cfg.VerifyToken == d.cfg.AppSecret {
		d.addWarning(r, "credentials", "VERIFY_TOKEN",
			"verify token equals the app secret; they serve different purposes and should differ")
	}
	if strings.TrimSpace(d.cfg.BusinessID) == "" {
		d.addError(r, "credentials", "BUSINESS_ID", "business account id is empty")
	}
}

// validateListenAddrs checks that listen addresses parse and do not collide.
func (d *Doctor) validateListenAddrs(r *Result) {
	if _, _, err := net.SplitHostPort(d.cfg.Listen); err != nil {
		d.addError(r, "listen", "LISTEN", fmt.Sprintf("invalid listen address %q: %v", d.cfg.Listen, err))
	}
	if _, _, err := net.SplitHostPort(d.cfg.AdminListen); err != nil {
		d.addError(r, "listen", "ADMIN_LISTEN", fmt.Sprintf("invalid listen address %q: %v", d.cfg.AdminListen, err))
	}
	if d.cfg.Listen == d.cfg.AdminListen {
		d.addError(r, "listen", "ADMIN_LISTEN", "webhook and admin servers share the same address")
	}
}

var graphVersionRe = regexp.MustCompile(`^v\d+\.\d+$`)

func (d *Doctor) validateGraphVersion(r *Result) {
	if !graphVersionRe.MatchString(d.cfg.GraphAPIVersion) {
		d.addError(r, "graph_api", "GRAPH_API_VERSION",
			fmt.Sprintf("invalid Graph API version %q (expected like v24.0)", d.cfg.GraphAPIVersion))
	}
}

// validateStorage checks the database path without creating anything.
func (d *Doctor) validateStorage(r *Result) {
	dir := filepath.Dir(d.cfg.DBPath)

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		d.addWarning(r, "storage", "DB_PATH",
			fmt.Sprintf("directory %q does not exist yet; it will be created at startup", dir))
	case err != nil:
		d.addError(r, "storage", "DB_PATH", fmt.Sprintf("cannot stat %q: %v", dir, err))
	case !info.IsDir():
		d.addError(r, "storage", "DB_PATH", fmt.Sprintf("%q is not a directory", dir))
	}

	if info, err := os.Stat(d.cfg.DBPath); err == nil && info.IsDir() {
		d.addError(r, "storage", "DB_PATH", fmt.Sprintf("%q is a directory, not a database file", d.cfg.DBPath))
	}
}

// validateTemplates loads the reply template file if one is configured.
func (d *Doctor) validateTemplates(r *Result) {
	if d.cfg.TemplatesPath == "" {
		return
	}

	tpls, err := config.LoadTemplates(d.cfg.TemplatesPath)
	if err != nil {
		d.addError(r, "templates", "TEMPLATES_PATH", err.Error())
		return
	}

	active := 0
	for _, tpl := range tpls.Templates {
		if !tpl.Disabled {
			active++
		}
	}
	if active == 0 {
		d.addWarning(r, "templates", "TEMPLATES_PATH",
			"template file has no active templates; every reply will use REPLY_TEXT")
	}
}

func (d *Doctor) warnTimeouts(r *Result) {
	if d.cfg.SendTimeout < time.Second {
		d.addWarning(r, "timeouts", "SEND_TIMEOUT",
			fmt.Sprintf("send timeout %s is very short; Graph API calls will likely be cut off", d.cfg.SendTimeout))
	}
	if d.cfg.SendTimeout > time.Minute {
		d.addWarning(r, "timeouts", "SEND_TIMEOUT",
			fmt.Sprintf("send timeout %s is longer than typical platform redelivery windows", d.cfg.SendTimeout))
	}
}

func (d *Doctor) warnAdminAPI(r *Result) {
	if d.cfg.AdminAPIKey == "" {
		d.addWarning(r, "admin_api", "ADMIN_API_KEY",
			"no admin API key configured; the admin API will not be started")
		return
	}
	if len(d.cfg.AdminAPIKey) < 16 {
		d.addWarning(r, "admin_api", "ADMIN_API_KEY", "admin API key is short; use a long random value")
	}

	host, _, err := net.SplitHostPort(d.cfg.AdminListen)
	if err != nil {
		return // already reported by validateListenAddrs
	}
	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			d.addWarning(r, "admin_api", "ADMIN_LISTEN",
				fmt.Sprintf("admin API listens on non-loopback address %q; make sure it is not publicly reachable", d.cfg.AdminListen))
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	}
	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
