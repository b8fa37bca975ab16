package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/license"
	"github.com/spf13/cobra"
)

var genRedeem bool

var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Manage license keys that unlock premium mode",
}

var licenseGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a serial key valid for one month",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			now := time.Now()
			lic, err := a.ws.Entitle.Licenses.Generate(ctx, now)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, lic.Key)
			if !genRedeem {
				dimColor.Fprintf(w, "expires %s; redeem with 'veiltext license redeem %s'\n", lic.ExpiresAt.Format(time.DateOnly), lic.Key)
				return nil
			}
			if _, err := a.ws.Entitle.Licenses.Redeem(ctx, lic.Key, now); err != nil {
				return err
			}
			okColor.Fprintln(w, "✓ Redeemed")
			return nil
		})
	},
}

var licenseRedeemCmd = &cobra.Command{
	Use:   "redeem <key>",
	Short: "Redeem a license key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			lic, err := a.ws.Entitle.Licenses.Redeem(ctx, args[0], time.Now())
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ License %s is %s\n", lic.Key, lic.Status)
			return nil
		})
	},
}

var licenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List redeemed keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			w := cmd.OutOrStdout()
			lics := a.ws.Entitle.Licenses.List()
			if len(lics) == 0 {
				fmt.Fprintln(w, "(no licenses)")
				return nil
			}
			now := time.Now()
			for _, l := range lics {
				status := l.Status
				if l.Status == license.StatusActive && !l.Usable(now) {
					status = "Expired"
				}
				exp := "never"
				if l.ExpiresAt != nil {
					exp = l.ExpiresAt.Format(time.DateOnly)
				}
				fmt.Fprintf(w, "- %s  %s  added %s  expires %s\n", l.Key, status, l.AddedAt.Format(time.DateOnly), exp)
			}
			return nil
		})
	},
}

var licenseRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Revoke a redeemed key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.ws.Entitle.Licenses.Revoke(ctx, args[0]); err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Revoked %s\n", args[0])
			return nil
		})
	},
}

var trialCmd = &cobra.Command{
	Use:   "trial",
	Short: "Start, extend or inspect the premium trial",
}

var trialStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a one-hour premium trial",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			exp, err := a.ws.Entitle.Trial.Start(ctx, time.Now())
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Premium trial active until %s\n", exp.Local().Format(time.Kitchen))
			return nil
		})
	},
}

var trialExtendCmd = &cobra.Command{
	Use:   "extend <hours>",
	Short: "Extend the trial by whole hours",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid hours: %q", args[0])
		}
		return withApp(func(ctx context.Context, a *app) error {
			exp, err := a.ws.Entitle.Trial.Extend(ctx, hours, time.Now())
			if err != nil {
				return err
			}
			okColor.Fprintf(cmd.OutOrStdout(), "✓ Premium trial active until %s\n", exp.Local().Format(time.DateTime))
			return nil
		})
	},
}

var trialStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the trial and whether premium mode is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app) error {
			w := cmd.OutOrStdout()
			now := time.Now()
			if rem := a.ws.Entitle.Trial.Remaining(now); rem > 0 {
				fmt.Fprintf(w, "trial: %s left\n", rem.Round(time.Second))
			} else if _, started := a.ws.Entitle.Trial.ExpiresAt(); started {
				fmt.Fprintln(w, "trial: expired")
			} else {
				fmt.Fprintln(w, "trial: not started")
			}
			fmt.Fprintf(w, "premium: %t\n", a.ws.PremiumAllowed())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(licenseCmd, trialCmd)
	licenseCmd.AddCommand(licenseGenerateCmd, licenseRedeemCmd, licenseListCmd, licenseRevokeCmd)
	trialCmd.AddCommand(trialStartCmd, trialExtendCmd, trialStatusCmd)
	licenseGenerateCmd.Flags().BoolVar(&genRedeem, "redeem", false, "redeem the generated key right away")
}
