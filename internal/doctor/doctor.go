// Package doctor provides health checks for an AegisMask installation.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mackeh/aegismask/internal/audit"
	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/secrets"
	"github.com/mackeh/aegismask/internal/wordlist"
)

// Status represents the result of a health check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	default:
		return "fail"
	}
}

// Result holds the outcome of a single health check.
type Result struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
	Fix    string `json:"fix,omitempty"` // suggested remediation
}

// Failed reports whether any result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// env is shared by every check. cfg is nil when the config did not load.
type env struct {
	ctx     context.Context
	dir     string
	cfgPath string
	cfg     *config.Config
	cfgErr  error
}

type check func(*env) Result

// RunAll executes all health checks against the config directory.
func RunAll(ctx context.Context, cfgDir string) []Result {
	e := &env{
		ctx:     ctx,
		dir:     cfgDir,
		cfgPath: filepath.Join(cfgDir, "config.yaml"),
	}
	e.cfg, e.cfgErr = config.Load(e.cfgPath)

	checks := []check{
		checkConfigDir,
		checkConfig,
		checkLists,
		checkIdentity,
		checkPolicy,
		checkAuditLog,
		checkDiskSpace,
	}

	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		results = append(results, c(e))
	}
	return results
}

func checkConfigDir(e *env) Result {
	info, err := os.Stat(e.dir)
	if err != nil {
		return Result{
			Name:   "Config directory",
			Status: StatusFail,
			Detail: e.dir + " not found",
			Fix:    "Run: aegismask init",
		}
	}
	if !info.IsDir() {
		return Result{
			Name:   "Config directory",
			Status: StatusFail,
			Detail: e.dir + " exists but is not a directory",
			Fix:    "Remove the file and run: aegismask init",
		}
	}
	return Result{
		Name:   "Config directory",
		Status: StatusPass,
		Detail: e.dir,
	}
}

func checkConfig(e *env) Result {
	if e.cfgErr != nil {
		fix := "Run: aegismask init"
		if errors.Is(e.cfgErr, config.ErrInvalid) {
			fix = "Edit " + e.cfgPath
		}
		return Result{
			Name:   "Configuration",
			Status: StatusFail,
			Detail: e.cfgErr.Error(),
			Fix:    fix,
		}
	}
	return Result{
		Name:   "Configuration",
		Status: StatusPass,
		Detail: e.cfgPath,
	}
}

func checkLists(e *env) Result {
	if e.cfg == nil {
		return Result{Name: "Keyword lists", Status: StatusWarn, Detail: "skipped (no configuration)"}
	}
	if len(e.cfg.Lists) == 0 {
		return Result{
			Name:   "Keyword lists",
			Status: StatusWarn,
			Detail: "no lists configured",
			Fix:    "Add a list under 'lists:' in " + e.cfgPath,
		}
	}

	opts := wordlist.LoadOptions{
		Strict:    e.cfg.InvalidKeywords == config.InvalidReject,
		Decrypter: secrets.NewManager(e.cfg.Secrets.Dir),
	}
	var (
		total    int
		skipped  int
		failures []string
	)
	for _, lc := range e.cfg.Lists {
		total += len(lc.Keywords)
		if lc.Path == "" {
			continue
		}
		opts.Format = lc.Format
		l, err := wordlist.Load(lc.Path, opts)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", lc.Name, err))
			continue
		}
		total += len(l.Keywords)
		skipped += l.Skipped + l.Invalid
	}

	if len(failures) > 0 {
		return Result{
			Name:   "Keyword lists",
			Status: StatusFail,
			Detail: strings.Join(failures, "; "),
			Fix:    "Fix the list files or their paths in " + e.cfgPath,
		}
	}
	detail := fmt.Sprintf("%d lists, %s keywords", len(e.cfg.Lists), humanize.Comma(int64(total)))
	if skipped > 0 {
		return Result{
			Name:   "Keyword lists",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%s, %d entries skipped", detail, skipped),
			Fix:    "Remove non-string or non-UTF-8 entries from the list files",
		}
	}
	return Result{Name: "Keyword lists", Status: StatusPass, Detail: detail}
}

func checkIdentity(e *env) Result {
	dir := filepath.Join(e.dir, "secrets")
	sealed := false
	if e.cfg != nil {
		dir = e.cfg.Secrets.Dir
		for _, lc := range e.cfg.Lists {
			if strings.HasSuffix(lc.Path, ".age") {
				sealed = true
			}
		}
	}

	recipient, err := secrets.NewManager(dir).Recipient()
	if err != nil {
		status := StatusWarn
		if sealed {
			status = StatusFail
		}
		return Result{
			Name:   "Age identity",
			Status: status,
			Detail: err.Error(),
			Fix:    "Run: aegismask lists keygen",
		}
	}
	return Result{
		Name:   "Age identity",
		Status: StatusPass,
		Detail: recipient,
	}
}

func checkPolicy(e *env) Result {
	path := filepath.Join(e.dir, "policy.rego")
	if e.cfg != nil {
		path = e.cfg.Policy.Path
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{
			Name:   "Policy engine",
			Status: StatusWarn,
			Detail: "policy.rego not found, using built-in policy",
			Fix:    "Run: aegismask init",
		}
	}
	if _, err := policy.LoadPolicy(e.ctx, path); err != nil {
		return Result{
			Name:   "Policy engine",
			Status: StatusFail,
			Detail: err.Error(),
			Fix:    "Fix the Rego in " + path + " or test it with: aegismask policy test",
		}
	}
	return Result{
		Name:   "Policy engine",
		Status: StatusPass,
		Detail: fmt.Sprintf("compiled (%s)", humanize.Bytes(uint64(info.Size()))),
	}
}

func checkAuditLog(e *env) Result {
	logPath := filepath.Join(e.dir, "audit", "audit.log")
	if e.cfg != nil {
		if !e.cfg.Audit.Enabled {
			return Result{Name: "Audit log", Status: StatusWarn, Detail: "disabled"}
		}
		logPath = e.cfg.Audit.Path
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return Result{
			Name:   "Audit log",
			Status: StatusPass,
			Detail: "empty (no entries yet)",
		}
	}

	n, err := audit.Verify(logPath)
	if err != nil {
		if errors.Is(err, audit.ErrTampered) {
			return Result{
				Name:   "Audit log",
				Status: StatusFail,
				Detail: fmt.Sprintf("%d entries verified, %s", n, err),
				Fix:    "Audit log may have been tampered with. Investigate immediately.",
			}
		}
		return Result{
			Name:   "Audit log",
			Status: StatusFail,
			Detail: fmt.Sprintf("failed to read: %s", err),
			Fix:    "Check file permissions on " + logPath,
		}
	}

	return Result{
		Name:   "Audit log",
		Status: StatusPass,
		Detail: fmt.Sprintf("valid (%s entries, chain intact)", humanize.Comma(int64(n))),
	}
}
