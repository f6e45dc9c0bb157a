package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/config"
	"github.com/mackeh/aegismask/internal/doctor"
	"github.com/mackeh/aegismask/internal/mcp"
	"github.com/mackeh/aegismask/internal/playground"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/security/redactor"
	"github.com/mackeh/aegismask/internal/server"
)

var version = "0.1.0"

// Persistent flags.
var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aegismask",
		Short: "Keyword redaction for text moderation",
		Long: `AegisMask masks dictionary keywords in text.
It matches leftmost-longest over shared-prefix keyword tries, can ignore
whitespace and ASCII case, and pairs every redaction with a policy decision,
tamper-evident audit logging and optional notifications.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.aegismask/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(redactCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(listsCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(playgroundCmd())
	rootCmd.AddCommand(mcpServerCmd())
	rootCmd.AddCommand(completionCmd())

	return rootCmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the moderation API server",
		Long: `Serves POST /v1/filter, GET /v1/lists, POST /v1/lists/{name}/reload,
/metrics, /health and a WebSocket event stream on /api/ws.
Lists marked 'watch: true' reload when their files change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			hub := server.NewHub(nil)
			a, err := newApp(ctx, appOptions{Publisher: hub, JSONLogs: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			srv := server.New(a.svc, server.Options{
				Config:         a.cfg.Server,
				StrictKeywords: a.cfg.InvalidKeywords == config.InvalidReject,
				Hub:            hub,
				Logger:         a.logger,
			})

			go func() {
				if err := a.svc.Watch(ctx); err != nil {
					a.logger.Error("list watcher stopped", "err", err)
				}
			}()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")
	return cmd
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the AegisMask setup",
		Long:  "Runs health checks on the configuration, keyword lists, age identity, policy, audit log and disk space.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			fmt.Println("🩺  AegisMask Health Check")
			fmt.Println()

			results := doctor.RunAll(cmd.Context(), filepath.Dir(path))

			passed, warned, failed := 0, 0, 0
			for _, r := range results {
				var icon string
				switch r.Status {
				case doctor.StatusPass:
					icon = "✅"
					passed++
				case doctor.StatusWarn:
					icon = "⚠️ "
					warned++
				case doctor.StatusFail:
					icon = "❌"
					failed++
				}

				// Pad name to align output
				dots := strings.Repeat(".", max(2, 25-len(r.Name)))
				fmt.Printf("%s %s %s %s\n", icon, r.Name, dots, r.Detail)

				if r.Fix != "" && r.Status != doctor.StatusPass {
					fmt.Printf("   → %s\n", r.Fix)
				}
			}

			fmt.Printf("\n%d/%d checks passed", passed, len(results))
			if warned > 0 {
				fmt.Printf(" (%d %s)", warned, plural(warned, "warning"))
			}
			if failed > 0 {
				fmt.Printf(" (%d %s)", failed, plural(failed, "failure"))
			}
			fmt.Println()

			if doctor.Failed(results) {
				return fmt.Errorf("%d health %s failed", failed, plural(failed, "check"))
			}
			return nil
		},
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func playgroundCmd() *cobra.Command {
	var list string
	var keywords []string
	cmd := &cobra.Command{
		Use:   "playground",
		Short: "Try a keyword list interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{NoAudit: true})
			if err != nil {
				return err
			}
			defer a.Close()
			// Keep log lines from tearing the TUI.
			a.logger.SetLevel(log.ErrorLevel)

			opts := playground.Options{
				Filter:     a.cfg.Filter.Options(),
				Policy:     a.engine,
				Thresholds: policy.Thresholds{Review: a.cfg.Policy.ReviewThreshold, Deny: a.cfg.Policy.DenyThreshold},
			}
			if len(keywords) > 0 {
				opts.Dictionary, err = redactor.BuildDictionary(keywords)
			} else {
				if list == "" {
					list = a.cfg.DefaultList
				}
				if list == "" {
					return fmt.Errorf("no list given and no default_list configured (use --list or --keyword)")
				}
				opts.List = list
				opts.Dictionary, err = a.svc.Dictionary(list)
			}
			if err != nil {
				return err
			}
			return playground.Run(opts)
		},
	}
	cmd.Flags().StringVarP(&list, "list", "l", "", "keyword list to try")
	cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "ad-hoc keyword (repeatable)")
	return cmd
}

func mcpServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the MCP server for AI assistant integration",
		Long: `Start a Model Context Protocol server on stdio.

This allows AI assistants to redact text with your keyword lists.

Configure in your MCP settings:
  {
    "mcpServers": {
      "aegismask": {
        "command": "aegismask",
        "args": ["mcp-server"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			auditPath := ""
			if a.cfg.Audit.Enabled {
				auditPath = a.cfg.Audit.Path
			}
			srv := mcp.NewServer(a.svc, mcp.Options{
				Version:        version,
				AuditPath:      auditPath,
				StrictKeywords: a.cfg.InvalidKeywords == config.InvalidReject,
			})
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

func completionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for AegisMask.

To load completions:

Bash:
  $ source <(aegismask completion bash)
  # Or add to ~/.bashrc:
  $ aegismask completion bash > /etc/bash_completion.d/aegismask

Zsh:
  $ aegismask completion zsh > "${fpath[1]}/_aegismask"

Fish:
  $ aegismask completion fish | source
  $ aegismask completion fish > ~/.config/fish/completions/aegismask.fish

PowerShell:
  PS> aegismask completion powershell | Out-String | Invoke-Expression
`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
