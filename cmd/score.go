package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/veiltext-cli/internal/detector"
	"github.com/KaramelBytes/veiltext-cli/internal/review"
	"github.com/KaramelBytes/veiltext-cli/internal/textops"
	"github.com/spf13/cobra"
)

var (
	selStart int
	selEnd   int
)

var scoreCmd = &cobra.Command{
	Use:   "score [id]",
	Short: "Ask the detector how likely a document is AI-generated",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			id, err := a.docID(args)
			if err != nil {
				return err
			}
			ch, err := a.ws.Score(ctx, id)
			if err != nil {
				return err
			}
			out := <-ch
			printOutcome(cmd.OutOrStdout(), out)
			return out.Err
		})
	},
}

var selectionCmd = &cobra.Command{
	Use:   "selection <id> <action>",
	Short: "Apply an action to runes [--start,--end) of a document",
	Long: `Apply an action to a rune range of a document.

Actions: uppercase, lowercase, capitalize, remove (edit in place),
new-tab (copy the range into a new document), score (score only the range).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, action := args[0], strings.ToLower(args[1])
		if selEnd < selStart {
			return fmt.Errorf("--end (%d) must not be before --start (%d)", selEnd, selStart)
		}
		return withApp(func(ctx context.Context, a *app) error {
			w := cmd.OutOrStdout()
			switch action {
			case "new-tab", "newtab":
				d, err := a.ws.SelectionToNewTab(id, selStart, selEnd)
				if err != nil {
					return err
				}
				okColor.Fprintf(w, "✓ Opened %s: %s with %q\n", d.ID, d.Title, preview(d.Content))
				return nil
			case "score", "check-ai":
				ch, err := a.ws.ScoreSelection(ctx, id, selStart, selEnd)
				if err != nil {
					return err
				}
				out := <-ch
				printOutcome(w, out)
				return out.Err
			}
			d, err := a.ws.ApplySelection(id, action, selStart, selEnd)
			if err != nil {
				return err
			}
			okColor.Fprintf(w, "✓ Applied %s to %s (%d words)\n", action, d.ID, d.WordCount)
			return nil
		})
	},
}

func printOutcome(w io.Writer, out review.Outcome) {
	if out.Err != nil {
		warnColor.Fprintf(w, "⚠ No score for %s: %s\n", out.Name, describeScoreError(out.Err))
		return
	}
	if out.High {
		highColor.Fprintf(w, "⚠ %s: AI %d%% (high likelihood of AI-generated content)\n", out.Name, out.Score)
		return
	}
	okColor.Fprintf(w, "✓ %s: AI %d%%\n", out.Name, out.Score)
}

func describeScoreError(err error) string {
	var (
		auth        *detector.AuthError
		rate        *detector.RateLimitError
		unreachable *detector.UnreachableError
	)
	switch {
	case errors.As(err, &auth):
		return "detector rejected the API key (set one with 'veiltext config set api_key ...')"
	case errors.As(err, &rate):
		return "detector is rate limiting; try again shortly"
	case errors.As(err, &unreachable):
		return fmt.Sprintf("detector unreachable at %s", unreachable.Host)
	case errors.Is(err, review.ErrSuperseded):
		return "a newer request replaced this one"
	}
	return err.Error()
}

func init() {
	rootCmd.AddCommand(scoreCmd, selectionCmd)
	selectionCmd.Flags().IntVar(&selStart, "start", 0, "first rune of the range")
	selectionCmd.Flags().IntVar(&selEnd, "end", 0, "rune after the range")
	_ = selectionCmd.MarkFlagRequired("end")
	selectionCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 1 {
			return append(textops.Actions(), "new-tab", "score"), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
