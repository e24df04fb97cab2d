package pgstorage

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alamak-sim/copsimcar/internal/config"
	gormstorage "github.com/alamak-sim/copsimcar/internal/storage/gorm"
)

func TestInit_UnreachableServer(t *testing.T) {
	b := New(config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "postgres",
		Password: "postgres",
		Database: "copsim",
	}, gormstorage.Config{}, nil, zerolog.Nop())

	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
	assert.Nil(t, b.DB())
	assert.NoError(t, b.Close())
}
