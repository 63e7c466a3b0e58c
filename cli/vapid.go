package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/chore-engine/push"
)

func init() {
	rootCmd.AddCommand(vapidCmd)
}

var vapidCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for Web Push",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		public, private, err := push.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "CHORES_VAPID_PUBLIC_KEY=%s\n", public)
		fmt.Fprintf(out, "CHORES_VAPID_PRIVATE_KEY=%s\n", private)
		return nil
	},
}
