package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "bfa-notary", cfg.App.Name)
	assert.Equal(t, "http://bfa-node:8545", cfg.BFA.NodeURL)
	assert.Equal(t, int64(99118822), cfg.BFA.ChainID)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", cfg.BFA.TargetAddress)
	assert.Equal(t, 3, cfg.BFA.SubmitAttempts)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableMetrics)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BFA_URL", "http://localhost:9545")
	t.Setenv("PRIVATE_KEY_BFA", "deadbeef")
	t.Setenv("ADDRESS_BFA", "0x000000000000000000000000000000000000dEaD")
	t.Setenv("DATABASE_URL", "postgres://notary@db/notary")

	cfg := loadDefaults(t)

	assert.Equal(t, "http://localhost:9545", cfg.BFA.NodeURL)
	assert.Equal(t, "deadbeef", cfg.BFA.PrivateKey)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", cfg.BFA.AccountAddress)
	assert.Equal(t, "postgres://notary@db/notary", cfg.Storage.ConnectionString)
}

func TestValidate(t *testing.T) {
	cfg := loadDefaults(t)
	assert.NoError(t, cfg.Validate())

	missingNode := *cfg
	missingNode.BFA.NodeURL = ""
	assert.Error(t, missingNode.Validate())

	missingChain := *cfg
	missingChain.BFA.ChainID = 0
	assert.Error(t, missingChain.Validate())

	badAttempts := *cfg
	badAttempts.BFA.SubmitAttempts = 0
	assert.Error(t, badAttempts.Validate())

	missingDB := *cfg
	missingDB.Storage.ConnectionString = ""
	assert.Error(t, missingDB.Validate())
}
