package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEveryUpHasDown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	for _, up := range ups {
		_, err := fs.Stat(FS, strings.TrimSuffix(up, ".up.sql")+".down.sql")
		require.NoError(t, err, up)
	}
}

func TestSchemaCarriesConstraintNames(t *testing.T) {
	data, err := fs.ReadFile(FS, "0001_init.up.sql")
	require.NoError(t, err)
	schema := string(data)
	for _, name := range []string{"memos_pending_source_uniq", "purchase_orders_pending_uniq", "general_ledger_books", "notifications"} {
		require.Contains(t, schema, name)
	}
}
