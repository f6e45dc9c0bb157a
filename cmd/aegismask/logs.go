package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/audit"
)

func logsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View audit logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			entries, err := audit.ReadAll(cfg.Audit.Path)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				fmt.Println("📜 Audit Log (empty)")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			fmt.Println("📜 Audit Log:")
			for _, e := range entries {
				switch e.Action {
				case "filter":
					fmt.Printf("[%s] filter %s by %s: %d matches (%d distinct) → %s  (%s)\n",
						e.Timestamp.Format(time.RFC3339),
						e.List,
						e.Actor,
						e.MatchCount,
						e.Distinct,
						e.Decision,
						humanize.Time(e.Timestamp),
					)
				default:
					fmt.Printf("[%s] %s by %s → %s %v\n",
						e.Timestamp.Format(time.RFC3339),
						e.Action,
						e.Actor,
						e.Decision,
						e.Details,
					)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N entries")

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify audit log integrity (hash chain)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("🕵️  Verifying audit log integrity...")
			n, err := audit.Verify(cfg.Audit.Path)
			if errors.Is(err, audit.ErrTampered) {
				fmt.Printf("❌ Verification FAILED after %d entries: %v\n", n, err)
				return err
			}
			if err != nil {
				return err
			}

			fmt.Printf("✅ Log integrity verified. Hash chain is unbroken (%s entries).\n", humanize.Comma(int64(n)))
			return nil
		},
	})

	return cmd
}
