package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/chore-engine/chores"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo family (development only)",
	Long: fmt.Sprintf(`Create a demo guardian and two children with a few open tasks.

PINs: admin %s, Child 1 %s, Child 2 %s. Refuses to run on a database that
already has accounts.`, chores.DemoAdminPIN, chores.DemoChild1PIN, chores.DemoChild2PIN),
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, _ []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	existing, err := a.store.ListPrincipals(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("database %s already has %d accounts", a.cfg.DB.Path, len(existing))
	}

	fam, err := chores.LoadDemoFamily(ctx, a.service)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Admin   %-8s PIN %s\n", fam.Admin.Name, chores.DemoAdminPIN)
	fmt.Fprintf(out, "Child   %-8s PIN %s\n", fam.Children[0].Name, chores.DemoChild1PIN)
	fmt.Fprintf(out, "Child   %-8s PIN %s\n", fam.Children[1].Name, chores.DemoChild2PIN)
	fmt.Fprintf(out, "%d tasks created\n", len(fam.Tasks))
	return nil
}
