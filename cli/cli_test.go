package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_Lifecycle(t *testing.T) {
	t.Setenv("CHORES_BCRYPT_COST", "4")
	db := filepath.Join(t.TempDir(), "chores.db")

	// GIVEN: A seeded database
	out, err := run(t, "", "seed", "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "3 tasks created")

	// Seeding twice is refused
	_, err = run(t, "", "seed", "--db", db)
	assert.Error(t, err)

	// WHEN: Adding another child
	out, err = run(t, "", "create-user", "--db", db, "--name", "Sam", "--pin", "4321")
	require.NoError(t, err, out)
	assert.Contains(t, out, `child "Sam"`)

	_, err = run(t, "", "create-user", "--db", db, "--name", "Bad", "--pin", "12")
	assert.Error(t, err)

	// THEN: The ledger verifies
	out, err = run(t, "", "verify-ledger", "--db", db)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK")

	// Reset without confirmation does nothing
	out, err = run(t, "no\n", "reset-data", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = run(t, "", "reset-data", "--db", db, "--yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, "3 tasks")
}

func TestVAPIDKeys(t *testing.T) {
	out, err := run(t, "", "vapid-keys")
	require.NoError(t, err)
	assert.Contains(t, out, "CHORES_VAPID_PUBLIC_KEY=")
	assert.Contains(t, out, "CHORES_VAPID_PRIVATE_KEY=")
}
