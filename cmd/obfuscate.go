package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/KaramelBytes/veiltext-cli/internal/workspace"
	"github.com/spf13/cobra"
)

var (
	obfMode  string
	obfScore bool
	obfSeed  uint64
)

var obfuscateCmd = &cobra.Command{
	Use:     "obfuscate [id]",
	Aliases: []string{"anti-detect"},
	Short:   "Interleave invisible marks into a document",
	Long: `Interleave invisible marks into a document (the active one by default).

standard uses eight zero-width marks. premium ("AuraCrypt") draws from a
larger set of variation selectors and tag characters and needs an active
trial or license.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := obfuscate.ParseMode(obfMode)
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			id, err := a.docID(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				a.ws.Engine = obfuscate.NewSeededEngine(obfSeed, obfuscate.WithProbability(cfg.Probability))
			}
			res, err := a.ws.AntiDetect(id, mode)
			if errors.Is(err, workspace.ErrPremiumLocked) {
				return fmt.Errorf("%w; start one with 'veiltext trial start' or redeem a key", err)
			}
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			okColor.Fprintf(w, "✓ %s: inserted %d %s marks (%d → %d characters)\n",
				id, res.Stats.Inserted, mode, res.Stats.OriginalLength, res.Stats.OutputLength)
			if !obfScore {
				return nil
			}
			ch, err := a.ws.Score(ctx, id)
			if err != nil {
				return err
			}
			printOutcome(w, <-ch)
			return nil
		})
	},
}

var stripCmd = &cobra.Command{
	Use:   "strip [id]",
	Short: "Remove every invisible mark from a document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			id, err := a.docID(args)
			if err != nil {
				return err
			}
			_, removed, err := a.ws.Strip(id)
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ %s: removed %d marks\n", id, removed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(obfuscateCmd, stripCmd)
	obfuscateCmd.Flags().StringVarP(&obfMode, "mode", "m", "standard", "mark set: standard or premium")
	obfuscateCmd.Flags().BoolVar(&obfScore, "score", false, "re-score the document afterwards")
	obfuscateCmd.Flags().Uint64Var(&obfSeed, "seed", 0, "seed the random source for reproducible output")
}
