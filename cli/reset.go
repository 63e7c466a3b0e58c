package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
}

var resetCmd = &cobra.Command{
	Use:   "reset-data",
	Short: "Delete all tasks and ledger entries and zero every balance",
	Long: `Delete all tasks and ledger entries and zero every balance.
Accounts and their PINs are kept. This cannot be undone.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, _ []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	out := cmd.OutOrStdout()

	if !yes {
		fmt.Fprint(out, "This deletes every task and ledger entry. Type 'yes' to continue: ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.TrimSpace(strings.ToLower(answer)) != "yes" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.service.Reset(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted %d ledger entries and %d tasks; zeroed %d balances.\n",
		stats.EntriesDeleted, stats.TasksDeleted, stats.PrincipalsZeroed)
	return nil
}
