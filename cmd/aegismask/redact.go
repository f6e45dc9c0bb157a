package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mackeh/aegismask/internal/moderation"
	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/security/redactor"
)

// errDenied is returned by 'redact --fail-on-deny'.
var errDenied = errors.New("content denied by policy")

type redactFlags struct {
	list             string
	keywords         []string
	ignoreWhitespace bool
	caseInsensitive  bool
	jsonOut          bool
	stats            bool
	stream           bool
	noAudit          bool
	failOnDeny       bool
}

func redactCmd() *cobra.Command {
	var f redactFlags
	cmd := &cobra.Command{
		Use:   "redact [TEXT...]",
		Short: "Mask keywords in text",
		Long: `Masks keywords in TEXT, or in standard input when no text is given.

Keywords come from --keyword, else --list, else the configured default list.
Each masked character becomes one mask character, so the output has as many
characters as the input.`,
		Example: `  aegismask redact --keyword foo --keyword bar "foo bazbaz bar"
  echo "S e C r E t" | aegismask redact -k secret -w -i
  aegismask redact --list profanity --json < comment.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedact(cmd, args, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.list, "list", "l", "", "keyword list to use")
	fl.StringArrayVarP(&f.keywords, "keyword", "k", nil, "ad-hoc keyword (repeatable, overrides --list)")
	fl.BoolVarP(&f.ignoreWhitespace, "ignore-whitespace", "w", false, "skip ASCII whitespace inside keywords and matches")
	fl.BoolVarP(&f.caseInsensitive, "case-insensitive", "i", false, "fold ASCII letters")
	fl.BoolVar(&f.jsonOut, "json", false, "print the full verdict as JSON")
	fl.BoolVar(&f.stats, "stats", false, "print match statistics to stderr")
	fl.BoolVar(&f.stream, "stream", false, "redact stdin to stdout without policy or audit")
	fl.BoolVar(&f.noAudit, "no-audit", false, "do not write an audit entry")
	fl.BoolVar(&f.failOnDeny, "fail-on-deny", false, "exit non-zero when the policy denies the text")
	return cmd
}

func runRedact(cmd *cobra.Command, args []string, f redactFlags) error {
	a, err := newApp(cmd.Context(), appOptions{NoAudit: f.noAudit || f.stream})
	if err != nil {
		return err
	}
	defer a.Close()

	if f.stream {
		return streamRedact(cmd, a, f)
	}

	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	req := moderation.Request{Text: text, List: f.list, Keywords: f.keywords, Actor: "cli"}
	if cmd.Flags().Changed("ignore-whitespace") {
		req.IgnoreWhitespace = &f.ignoreWhitespace
	}
	if cmd.Flags().Changed("case-insensitive") {
		req.CaseInsensitive = &f.caseInsensitive
	}

	v, err := a.svc.Moderate(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, v.Result)
		if len(args) > 0 {
			fmt.Fprintln(out)
		}
	}

	if f.stats {
		printStats(cmd.ErrOrStderr(), text, v)
	}
	if f.failOnDeny && v.Decision == policy.Deny {
		return errDenied
	}
	return nil
}

// streamRedact copies stdin to stdout through a RedactingWriter.
func streamRedact(cmd *cobra.Command, a *app, f redactFlags) error {
	opts := a.cfg.Filter.Options()
	if cmd.Flags().Changed("ignore-whitespace") {
		opts.IgnoreWhitespace = f.ignoreWhitespace
	}
	if cmd.Flags().Changed("case-insensitive") {
		opts.CaseInsensitive = f.caseInsensitive
	}

	keywords := f.keywords
	if len(keywords) == 0 {
		name := f.list
		if name == "" {
			name = a.cfg.DefaultList
		}
		if name == "" {
			return moderation.ErrNoDictionary
		}
		d, err := a.svc.Dictionary(name)
		if err != nil {
			return err
		}
		keywords = d.Keywords()
	}

	r, err := redactor.NewWithOptions(opts, keywords...)
	if err != nil {
		return err
	}
	w := redactor.NewRedactingWriter(cmd.OutOrStdout(), r)
	if _, err := io.Copy(w, cmd.InOrStdin()); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	if f.stats {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s masked\n", humanize.Comma(int64(len(w.Keywords()))))
	}
	return nil
}

func printStats(w io.Writer, text string, v moderation.Verdict) {
	distinct := make(map[string]struct{}, len(v.Keywords))
	for _, k := range v.Keywords {
		distinct[k] = struct{}{}
	}
	list := v.List
	if list == "" {
		list = "ad-hoc"
	}
	fmt.Fprintf(w, "%s: %s matches (%d distinct), decision %s, %s scanned in %s\n",
		list,
		humanize.Comma(int64(len(v.Keywords))),
		len(distinct),
		v.Decision,
		humanize.Bytes(uint64(len(text))),
		v.Duration,
	)
}
