package app

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/avvvet/tod-intent/internal/config"
	"github.com/avvvet/tod-intent/internal/memory"
	"github.com/avvvet/tod-intent/internal/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStoreFallsBackToLocal(t *testing.T) {
	store, err := Store(&config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &memory.LocalStore{}, store)
}

func TestStoreUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Store(&config.Config{RedisURL: "redis://" + mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &memory.RedisStore{}, store)
}

func TestDataToolsDisabledWithoutSource(t *testing.T) {
	assert.Nil(t, DataTools(&config.Config{}, nil, zaptest.NewLogger(t)))
}

func TestDataToolsRegistersRetrievers(t *testing.T) {
	cfg := &config.Config{DataRealmID: "9130", DataAccessToken: "tok", DataPageSize: 10, CacheDir: t.TempDir()}
	runner := DataTools(cfg, nil, zaptest.NewLogger(t))
	require.NotNil(t, runner)
	assert.ElementsMatch(t, []string{
		retrieval.SchemaSourceName,
		retrieval.RowCountSourceName,
		retrieval.QuerySourceName,
		retrieval.UserDataSourceName,
	}, runner.Names())
}

func TestCatalogDefault(t *testing.T) {
	cat, err := Catalog(&config.Config{})
	require.NoError(t, err)
	_, ok := cat.IntentByName("book_listing")
	assert.True(t, ok)

	_, err = Catalog(&config.Config{CatalogPath: "does-not-exist.yaml"})
	assert.Error(t, err)
}
