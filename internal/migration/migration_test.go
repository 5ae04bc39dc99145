package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %q", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestInitialSchemaDeclaresUniqueKeys(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, want := range []string{
		"UNIQUE (corporate_number)",
		"UNIQUE (user_id, corporation_id)",
		"UNIQUE (source_type, source_id)",
		"UNIQUE (user_id, year_month)",
		"UNIQUE (provider, provider_event_id)",
	} {
		require.Contains(t, schema, want)
	}
}
