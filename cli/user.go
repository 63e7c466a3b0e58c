package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createUserCmd)
	createUserCmd.Flags().String("name", "", "Display name")
	createUserCmd.Flags().String("pin", "", "4-digit PIN")
	createUserCmd.Flags().Bool("admin", false, "Create a guardian (admin) account")
	createUserCmd.MarkFlagRequired("name")
	createUserCmd.MarkFlagRequired("pin")
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a child or admin account",
	Long: `Create an account with a 4-digit PIN.

PINs are not checked for uniqueness; login matches the first account whose
PIN fits, so give every account a different PIN.`,
	Args: cobra.NoArgs,
	RunE: runCreateUser,
}

func runCreateUser(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	pin, _ := cmd.Flags().GetString("pin")
	isAdmin, _ := cmd.Flags().GetBool("admin")

	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.service.CreatePrincipal(cmd.Context(), name, pin, isAdmin)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %s)\n", p.Role(), p.Name, p.ID)
	return nil
}
