package app

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thurman/crypto"
	"thurman/native/pool"
	"thurman/services/poold/config"
)

func makeAddress(prefix, suffix byte) crypto.Address {
	var a crypto.Address
	a[0] = prefix
	a[19] = suffix
	return a
}

var (
	admin      = makeAddress(0xA0, 0x01)
	operator   = makeAddress(0xA0, 0x02)
	manager    = makeAddress(0xA0, 0x03)
	vault      = makeAddress(0xB0, 0x01)
	originator = makeAddress(0xC0, 0x01)
	investor   = makeAddress(0xD0, 0x01)
	registry   = makeAddress(0xF0, 0x01)
)

func testGenesis(t *testing.T) *config.Genesis {
	t.Helper()
	g := &config.Genesis{
		Admin:     admin,
		Operators: []crypto.Address{operator},
		Engine:    pool.Config{ManagerAddress: manager},
		Registry: []config.GenesisRegistry{{
			Address:     registry,
			Admin:       admin,
			Originators: []crypto.Address{originator},
			Accruers:    []crypto.Address{manager},
		}},
		Pool: []config.GenesisPool{{
			Vault:     vault,
			Registry:  registry,
			MarginFee: "0.1",
			Settings:  config.GenesisSettings{DepositsEnabled: true, WithdrawalsEnabled: true, BorrowingEnabled: true},
		}},
		Balance: []config.GenesisBalance{{Account: investor, Amount: "5000"}},
	}
	require.NoError(t, g.Validate())
	return g
}

func levelConfig(t *testing.T, dir string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = "dev"
	cfg.Storage = config.StorageConfig{Driver: config.DriverLevelDB, Path: filepath.Join(dir, "state")}
	return cfg
}

func TestBuildAppliesGenesis(t *testing.T) {
	cfg := config.Default()
	cfg.Environment = "dev"
	a, err := Build(context.Background(), cfg, testGenesis(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	view, err := a.Engine.Pool(0)
	require.NoError(t, err)
	require.True(t, view.Settings.DepositsEnabled)
	require.Equal(t, "100000000000000000", view.MarginFee.String())

	bal, err := a.Bank.BalanceOf(context.Background(), investor)
	require.NoError(t, err)
	require.Equal(t, int64(5000), bal.Int64())

	reg := a.Registries[registry]
	require.NotNil(t, reg)
	require.True(t, reg.IsActiveOriginator(originator))
	require.True(t, reg.IsAccruer(manager))
	require.True(t, a.Engine.IsPoolOperator(operator))
	require.Nil(t, a.Journal)
}

func TestBuildRestoresPersistedState(t *testing.T) {
	dir := t.TempDir()
	cfg := levelConfig(t, dir)
	ctx := context.Background()

	first, err := Build(ctx, cfg, testGenesis(t), nil)
	require.NoError(t, err)
	require.NoError(t, first.Engine.RequestDeposit(ctx, investor, 0, big.NewInt(1200), investor, investor))
	newcomer := makeAddress(0xC0, 0x02)
	require.NoError(t, first.Registries[registry].RegisterOriginator(admin, newcomer))
	first.Close()

	// A changed genesis must not be reapplied to an initialised store.
	g := testGenesis(t)
	g.Balance[0].Amount = "1"
	second, err := Build(ctx, cfg, g, nil)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.EqualValues(t, 1, second.Engine.PoolCount())
	account, err := second.Engine.Account(0, investor)
	require.NoError(t, err)
	require.Equal(t, int64(1200), account.Deposit.Pending.Int64())

	bal, err := second.Bank.BalanceOf(ctx, investor)
	require.NoError(t, err)
	require.Equal(t, int64(3800), bal.Int64())
	vaultBal, err := second.Bank.BalanceOf(ctx, vault)
	require.NoError(t, err)
	require.Equal(t, int64(1200), vaultBal.Int64())

	require.True(t, second.Registries[registry].IsActiveOriginator(newcomer))
}

func TestBuildRestoresOperatorCapabilities(t *testing.T) {
	dir := t.TempDir()
	cfg := levelConfig(t, dir)
	ctx := context.Background()
	delegate := makeAddress(0xA0, 0x09)

	first, err := Build(ctx, cfg, testGenesis(t), nil)
	require.NoError(t, err)
	require.NoError(t, first.Engine.GrantOperator(admin, delegate))
	require.NoError(t, first.Engine.RevokeOperator(admin, operator))
	first.Close()

	second, err := Build(ctx, cfg, testGenesis(t), nil)
	require.NoError(t, err)
	t.Cleanup(second.Close)

	require.False(t, second.Engine.IsPoolOperator(operator), "revocation must survive a restart")
	require.True(t, second.Engine.IsPoolOperator(delegate))
	require.Equal(t, []crypto.Address{delegate}, second.Engine.Operators())

	req := httptest.NewRequest(http.MethodGet, "/v1/operators", nil)
	req.Header.Set(DevCallerHeader, admin.String())
	res := httptest.NewRecorder()
	second.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Contains(t, res.Body.String(), delegate.String())
	require.NotContains(t, res.Body.String(), operator.String())
}

func TestBuildWiresJournalAndDevCaller(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Environment = "dev"
	cfg.Journal = config.JournalConfig{
		Driver:    config.DriverSQLite,
		DSN:       "file:" + filepath.Join(dir, "journal.db"),
		ExportDir: filepath.Join(dir, "exports"),
	}
	a, err := Build(context.Background(), cfg, testGenesis(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.Journal)

	head, _ := a.Journal.Head()
	require.NotZero(t, head)
	require.NoError(t, a.Journal.Verify(context.Background()))

	req := httptest.NewRequest(http.MethodGet, "/v1/pools/0/accounts/"+investor.String(), nil)
	req.Header.Set(DevCallerHeader, investor.String())
	res := httptest.NewRecorder()
	a.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Contains(t, res.Body.String(), `"assets":"5000"`)
}

func TestBuildRequiresGenesis(t *testing.T) {
	_, err := Build(context.Background(), config.Default(), nil, nil)
	require.Error(t, err)
}
