package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/policy"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and test the moderation policy",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the active policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(cfg.Policy.Path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("⚠️  No policy file found at", cfg.Policy.Path, "- the built-in policy applies:")
					fmt.Println("---")
					fmt.Print(policy.DefaultPolicy)
					fmt.Println("---")
					return nil
				}
				return fmt.Errorf("failed to read policy file: %w", err)
			}

			fmt.Printf("📋 Policy File: %s\n", cfg.Policy.Path)
			fmt.Printf("   Thresholds: review ≥ %d, deny ≥ %d\n", cfg.Policy.ReviewThreshold, cfg.Policy.DenyThreshold)
			fmt.Println("---")
			fmt.Println(string(data))
			fmt.Println("---")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "templates",
		Short: "List the policy templates offered by init",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range policy.TemplateNames() {
				fmt.Println(name)
			}
		},
	})

	cmd.AddCommand(policyTestCmd())
	return cmd
}

func policyTestCmd() *cobra.Command {
	var in policy.Input
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Evaluate the policy for a hypothetical filter result",
		Example: `  aegismask policy test --matches 3
  aegismask policy test --matches 1 --list profanity --actor ops`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := policy.LoadOrDefault(cmd.Context(), cfg.Policy.Path)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("distinct") {
				in.Distinct = in.MatchCount
			}
			in.Thresholds = policy.Thresholds{Review: cfg.Policy.ReviewThreshold, Deny: cfg.Policy.DenyThreshold}

			d, err := engine.Evaluate(cmd.Context(), in)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  evaluation failed, falling back to %s: %v\n", d, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&in.MatchCount, "matches", "m", 0, "number of matched spans")
	fl.IntVar(&in.Distinct, "distinct", 0, "number of distinct matched spans (defaults to --matches)")
	fl.IntVar(&in.TextLength, "length", 0, "text length in characters")
	fl.StringVarP(&in.List, "list", "l", "", "list name")
	fl.StringVar(&in.Actor, "actor", "cli", "actor name")
	return cmd
}
