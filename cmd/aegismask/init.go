package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/secrets"
)

const starterList = `# One keyword per line. Blank lines and lines starting with # are ignored.
# Point lists[].path in config.yaml at JSON, YAML or TOML files as well.
badword
`

// initChoices are the answers of the setup form.
type initChoices struct {
	Policy           string
	Mask             string
	IgnoreWhitespace bool
	CaseInsensitive  bool
	StarterList      bool
	Keygen           bool
	Auth             bool
}

func defaultChoices() initChoices {
	return initChoices{
		Policy:      "standard",
		Mask:        "*",
		StarterList: true,
		Keygen:      true,
	}
}

func initCmd() *cobra.Command {
	var yes, force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize AegisMask configuration",
		Long:  "Creates the ~/.aegismask directory with a config file, a policy and a starter keyword list.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			choices := defaultChoices()
			if !yes {
				if err := askChoices(&choices); err != nil {
					if !errors.Is(err, huh.ErrUserAborted) {
						return err
					}
					// Aborted forms fall back to the defaults.
					choices = defaultChoices()
				}
			}
			return runInit(filepath.Dir(path), path, choices)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "accept defaults without prompting")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	return cmd
}

func askChoices(c *initChoices) error {
	policyOptions := make([]huh.Option[string], 0, len(policy.Templates))
	for _, name := range policy.TemplateNames() {
		policyOptions = append(policyOptions, huh.NewOption(templateLabel(name), name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Policy strictness?").
				Options(policyOptions...).
				Value(&c.Policy),

			huh.NewInput().
				Title("Mask character").
				CharLimit(1).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("enter one character")
					}
					return nil
				}).
				Value(&c.Mask),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Ignore whitespace inside keywords by default?").
				Value(&c.IgnoreWhitespace),

			huh.NewConfirm().
				Title("Match ASCII letters case-insensitively by default?").
				Value(&c.CaseInsensitive),

			huh.NewConfirm().
				Title("Create a starter keyword list?").
				Affirmative("Yes (recommended)").
				Negative("No").
				Value(&c.StarterList),

			huh.NewConfirm().
				Title("Generate an age identity for sealed lists?").
				Affirmative("Yes (recommended)").
				Negative("No").
				Value(&c.Keygen),

			huh.NewConfirm().
				Title("Require API keys for the HTTP server?").
				Value(&c.Auth),
		),
	)
	return form.Run()
}

func templateLabel(name string) string {
	switch name {
	case "standard":
		return "Standard (review on any match, deny at the threshold)"
	case "strict":
		return "Strict (deny on any match)"
	case "permissive":
		return "Permissive (never deny, review heavy hitters)"
	default:
		return name
	}
}

func runInit(dir, path string, c initChoices) error {
	fmt.Println("🛡️  AegisMask Setup")
	fmt.Println()

	cfg := config.Default(dir)
	cfg.Filter.Mask = c.Mask
	cfg.Filter.IgnoreWhitespace = c.IgnoreWhitespace
	cfg.Filter.CaseInsensitive = c.CaseInsensitive

	for _, sub := range []string{dir, filepath.Dir(cfg.Audit.Path), cfg.Secrets.Dir} {
		if err := os.MkdirAll(sub, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	if c.StarterList {
		listPath := filepath.Join(dir, "lists", "default.txt")
		if err := os.MkdirAll(filepath.Dir(listPath), 0700); err != nil {
			return err
		}
		if _, err := os.Stat(listPath); errors.Is(err, os.ErrNotExist) {
			if err := os.WriteFile(listPath, []byte(starterList), 0600); err != nil {
				return fmt.Errorf("failed to write starter list: %w", err)
			}
			fmt.Printf("✅ Created %s\n", listPath)
		}
		cfg.Lists = []config.ListConfig{{Name: "default", Path: listPath, Watch: true}}
		cfg.DefaultList = "default"
	}

	var token string
	if c.Auth {
		token = uuid.NewString()
		cfg.Server.Auth = config.AuthConfig{
			Enabled: true,
			Keys:    []config.APIKey{{Name: "admin", Token: token, Role: "admin"}},
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("✅ Created %s\n", path)

	tmpl, ok := policy.Templates[c.Policy]
	if !ok {
		c.Policy, tmpl = "standard", policy.DefaultPolicy
	}
	if err := os.WriteFile(cfg.Policy.Path, []byte(tmpl), 0600); err != nil {
		return fmt.Errorf("failed to write policy: %w", err)
	}
	fmt.Printf("✅ Created %s (%s policy)\n", cfg.Policy.Path, c.Policy)

	if c.Keygen {
		pub, err := secrets.NewManager(cfg.Secrets.Dir).Init()
		if err != nil {
			fmt.Printf("⚠️  Skipped identity: %v\n", err)
		} else {
			fmt.Printf("✅ Generated age identity (%s)\n", pub)
		}
	}

	fmt.Println()
	fmt.Println("🎭 AegisMask initialized successfully!")
	if token != "" {
		fmt.Printf("\n🔑 Admin API key: %s\n   (stored in %s)\n", token, path)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Add keywords to your list and run 'aegismask lists stats'")
	fmt.Println("  2. Try them with 'aegismask playground'")
	fmt.Println("  3. Run 'aegismask doctor' to verify your setup")
	fmt.Println("  4. Run 'aegismask serve' to start the API")

	return nil
}
