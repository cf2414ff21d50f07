package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kol-scoreboard/internal/config"
	"kol-scoreboard/internal/storage/memory"
)

func loadDefaults(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load(config.NewViper(), "")
	require.NoError(t, err)
	return cfg
}

func TestOpenDependencies_MemoryDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	deps, cleanup, err := openDependencies(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.VoteStore{}, deps.votes)
	assert.IsType(t, &memory.CommentStore{}, deps.comments)
	assert.IsType(t, &memory.NoteStore{}, deps.notes)
	assert.IsType(t, &memory.ScrapeCache{}, deps.cache)
	assert.IsType(t, &memory.ScrapeRunStore{}, deps.runs)
}

func TestOpenDependencies_BadRedisURL(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Redis.URL = "not-a-url"

	_, _, err := openDependencies(context.Background(), cfg, slog.New(slog.DiscardHandler))

	assert.Error(t, err)
}
