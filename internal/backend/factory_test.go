package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendly/internal/config"
	"spendly/internal/core"
	"spendly/internal/ports"
	"spendly/internal/services"
)

func writeSeeds(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_categories.txt"), []byte("Food\n# comment\n\nRent\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed_accounts.txt"), []byte("Bank\n"), 0o600))
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", DataDirectory: "seeds"})
	require.NoError(t, err)
	require.Equal(t, MemoryBackend, cfg.Type)
	require.Equal(t, "seeds", cfg.DataDirectory)
}

func TestConfigValidate(t *testing.T) {
	require.Error(t, Config{Type: "sheets"}.Validate())
	require.Error(t, Config{Type: SQLiteBackend}.Validate())
	require.Error(t, Config{Type: MemoryBackend, AMQPURL: "amqp://localhost"}.Validate())
	require.NoError(t, Config{Type: MemoryBackend}.Validate())
	require.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

func TestCreateMemoryBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeSeeds(t, dir)

	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: dir})
	require.NoError(t, err)
	defer res.Close()

	require.IsType(t, ports.NopNotifier{}, res.Notifier)
	cats, err := res.Store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 3) // Misc plus the two seeded names
}

func TestCreateSQLiteBackendSeedsFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeSeeds(t, dir)

	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:          SQLiteBackend,
		SQLiteDBPath:  filepath.Join(dir, "db", "spendly.db"),
		DataDirectory: dir,
	})
	require.NoError(t, err)
	defer res.Close()

	accs, err := res.Store.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accs, 2)

	_, err = res.Store.GetCategory(ctx, core.SeedID("category", "Rent"))
	require.NoError(t, err)
}

func TestServicesEndToEnd(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{Type: MemoryBackend, DataDirectory: t.TempDir()})
	require.NoError(t, err)
	svc := NewServices(res)

	now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)
	_, _, err = svc.Budgets.SetBudget(ctx, nil, core.Money{Cents: 10000}, 2025, 6)
	require.NoError(t, err)
	_, err = svc.Templates.Create(ctx, services.NewTemplateInput{
		Type:        core.Expense,
		Amount:      core.Money{Cents: 8000},
		Description: "Rent share",
		Frequency:   core.Monthly,
	}, now)
	require.NoError(t, err)

	report, err := svc.Engine.ProcessAll(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created())

	st, err := svc.Budgets.Status(ctx, nil, 2025, 6)
	require.NoError(t, err)
	require.True(t, st.Budget.Notified75, "engine entries must reach the budget tracker")
	require.False(t, st.Budget.Notified100)
}
