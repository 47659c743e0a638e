package config

import (
	"testing"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalog(t *testing.T) {
	data := []byte(`
tiers:
  - vip
  - cold
stages:
  - nurture
categories:
  - boat-detailing
`)
	catalog, err := ParseCatalog(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"vip", "cold"}, catalog.Tiers)
	assert.Equal(t, 0, catalog.TierRank(models.Tier1))
	assert.Equal(t, 3, catalog.TierRank("vip"))
	assert.Equal(t, 4, catalog.TierRank("cold"))
	assert.Equal(t, 5, catalog.TierRank("unlisted"))
	assert.Contains(t, catalog.AllStages(), models.Stage("nurture"))
	assert.Contains(t, catalog.AllCategories(), "boat-detailing")
}

func TestParseCatalogRejectsDuplicateTier(t *testing.T) {
	_, err := ParseCatalog([]byte("tiers: [vip, vip]\n"))
	assert.Error(t, err)
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	catalog, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Empty(t, catalog.Tiers)
	assert.Equal(t, len(models.BuiltinStages), len(catalog.AllStages()))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LEASE_TIMEOUT", "")
	t.Setenv("RENEW_INTERVAL", "90s")

	cfg := LoadConfig()
	assert.Equal(t, "5m0s", cfg.LeaseTimeout.String())
	assert.Equal(t, "1m30s", cfg.RenewInterval.String())
	assert.Equal(t, 8080, cfg.Port)
}
