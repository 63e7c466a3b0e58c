package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify-ledger",
	Short: "Check every cached balance against the ledger",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func runVerify(cmd *cobra.Command, _ []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	drifts, err := a.service.VerifyLedger(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(drifts) == 0 {
		fmt.Fprintln(out, "OK: all balances match the ledger")
		return nil
	}
	for _, d := range drifts {
		fmt.Fprintf(out, "DRIFT %s (%s): cached %d, ledger %d\n", d.Name, d.PrincipalID, d.Cached, d.Ledger)
	}
	return fmt.Errorf("%d balance(s) do not match the ledger", len(drifts))
}
