package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/secrets"
)

func listsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Inspect, seal and manage keyword lists",
	}

	cmd.AddCommand(listsStatsCmd())
	cmd.AddCommand(listsShowCmd())
	cmd.AddCommand(listsKeygenCmd())
	cmd.AddCommand(listsSealCmd())
	return cmd
}

func listsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show loaded lists with sizes and fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{NoAudit: true})
			if err != nil {
				return err
			}
			defer a.Close()

			lists := a.svc.Lists()
			if len(lists) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "📚 No keyword lists configured.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKEYWORDS\tSKIPPED\tFINGERPRINT\tSOURCE")
			for _, l := range lists {
				source := "inline"
				if l.Path != "" {
					source = l.Path
					if info, err := os.Stat(l.Path); err == nil {
						source = fmt.Sprintf("%s (%s)", l.Path, humanize.Bytes(uint64(info.Size())))
					}
				}
				if l.Sealed {
					source += " 🔒"
				}
				name := l.Name
				if name == a.cfg.DefaultList {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", name, humanize.Comma(int64(l.Keywords)), l.Skipped, l.Fingerprint, source)
			}
			return tw.Flush()
		},
	}
}

// errMissingKeywords is returned by 'lists show --contains' when a keyword
// is not in the list.
var errMissingKeywords = errors.New("keywords missing from list")

func listsShowCmd() *cobra.Command {
	var prefix string
	var contains []string
	cmd := &cobra.Command{
		Use:   "show [NAME]",
		Short: "Print the keywords of a list in dictionary order",
		Example: `  aegismask lists show profanity --prefix bad
  aegismask lists show profanity --contains "bad word" --contains "a,b"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), appOptions{NoAudit: true})
			if err != nil {
				return err
			}
			defer a.Close()

			name := a.cfg.DefaultList
			if len(args) == 1 {
				name = args[0]
			}
			if name == "" {
				return fmt.Errorf("no list given and no default_list configured")
			}
			d, err := a.svc.Dictionary(name)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(contains) > 0 {
				missing := 0
				for _, k := range contains {
					if d.Contains(k) {
						fmt.Fprintf(out, "✅ %q\n", k)
					} else {
						fmt.Fprintf(out, "❌ %q\n", k)
						missing++
					}
				}
				if missing > 0 {
					return fmt.Errorf("%w: %d of %d in %s", errMissingKeywords, missing, len(contains), name)
				}
				return nil
			}

			for _, k := range d.WithPrefix(prefix) {
				fmt.Fprintf(out, "%q\n", k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only keywords starting with this prefix")
	cmd.Flags().StringArrayVar(&contains, "contains", nil, "check that a keyword is in the list, spelled exactly (repeatable)")
	return cmd
}

func listsKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the age identity used to seal lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := secrets.NewManager(cfg.Secrets.Dir)
			pubKey, err := mgr.Init()
			if err != nil {
				return err
			}

			fmt.Println("🔐 Identity created at", mgr.KeyFile())
			fmt.Printf("🔑 Public Key: %s\n", pubKey)
			fmt.Println("⚠️  Back up the identity file; sealed lists cannot be opened without it.")
			return nil
		},
	}
}

func listsSealCmd() *cobra.Command {
	var armor bool
	cmd := &cobra.Command{
		Use:   "seal SRC [DST]",
		Short: "Encrypt a list file with age",
		Long: `Encrypts SRC to the local identity. DST defaults to SRC with ".age"
appended, which is how sealed lists are recognised when loading.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src := args[0]
			dst := src + ".age"
			if len(args) == 2 {
				dst = args[1]
			}

			if err := secrets.NewManager(cfg.Secrets.Dir).SealFile(src, dst, armor); err != nil {
				return err
			}
			fmt.Printf("🔒 Sealed %s → %s\n", src, dst)
			fmt.Println("   Point the list's path at the sealed file and delete the plaintext.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&armor, "armor", false, "write ASCII-armored output")
	return cmd
}
