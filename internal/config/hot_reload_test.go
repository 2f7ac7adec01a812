package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "quote-engine/config"
	"quote-engine/order"
	"quote-engine/strategy"
)

// mockApplier 模拟参数应用器
type mockApplier struct {
	mu     sync.Mutex
	params []order.Params
	fair   uint64
	margin uint64
}

func (m *mockApplier) SetParams(p order.Params) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = append(m.params, p)
}

func (m *mockApplier) SetFairPrice(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fair = v
}

func (m *mockApplier) SetMargin(v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.margin = v
}

func (m *mockApplier) applied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.params)
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHotReloader_New(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 10\n")

	reloader, err := NewHotReloader(configPath, DefaultHotReloadConfig(), nil)
	require.NoError(t, err)
	defer reloader.Stop()

	assert.Equal(t, configPath, reloader.configPath)
	assert.True(t, reloader.GetLastReloadTime().IsZero())
}

func TestHotReloader_ReloadAppliesStrategy(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, `
strategy:
  quote_edge_bps: 25
  quote_size_quote_atoms: 5000
  behavior: ubermensch
  post_only: false
  margin: 3
  fair_price_ticks: 123456
`)
	reloader, err := NewHotReloader(configPath, DefaultHotReloadConfig(), nil)
	require.NoError(t, err)
	defer reloader.Stop()

	app := &mockApplier{}
	reloader.SetReloadHandler(ApplyTo(app))
	require.NoError(t, reloader.Reload())

	require.Len(t, app.params, 1)
	p := app.params[0]
	assert.Equal(t, uint64(25), *p.QuoteEdgeInBps)
	assert.Equal(t, uint64(5000), *p.QuoteSizeInQuoteAtoms)
	assert.Equal(t, strategy.Ubermensch, *p.Behavior)
	assert.False(t, *p.PostOnly)
	assert.Equal(t, uint64(3), app.margin)
	assert.Equal(t, uint64(123456), app.fair)
	assert.Equal(t, 1, reloader.Reloads())
	assert.False(t, reloader.GetLastReloadTime().IsZero())
}

func TestHotReloader_InvalidStrategyNotApplied(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 0\n")

	reloader, err := NewHotReloader(configPath, DefaultHotReloadConfig(), nil)
	require.NoError(t, err)
	defer reloader.Stop()

	app := &mockApplier{}
	reloader.SetReloadHandler(ApplyTo(app))
	err = reloader.Reload()
	var invalid appconfig.ErrInvalid
	assert.True(t, errors.As(err, &invalid))
	assert.Zero(t, app.applied())
	assert.Zero(t, reloader.Reloads())
}

func TestHotReloader_HandlerErrorNotCounted(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 10\n")

	reloader, err := NewHotReloader(configPath, DefaultHotReloadConfig(), nil)
	require.NoError(t, err)
	defer reloader.Stop()

	reloader.SetReloadHandler(func(appconfig.StrategyConfig) error { return errors.New("busy") })
	assert.Error(t, reloader.Reload())
	assert.True(t, reloader.GetLastReloadTime().IsZero())
}

func TestHotReloader_WatchesFileChanges(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 10\n")

	reloader, err := NewHotReloader(configPath, HotReloadConfig{Enabled: true}, nil)
	require.NoError(t, err)
	defer reloader.Stop()

	app := &mockApplier{}
	reloader.SetReloadHandler(ApplyTo(app))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, reloader.Start(ctx))

	// 同目录下其他文件的变化被忽略
	writeConfig(t, filepath.Join(dir, "other.yaml"), "strategy:\n  quote_edge_bps: 99\n")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 30\n")

	require.Eventually(t, func() bool { return app.applied() > 0 }, 2*time.Second, 10*time.Millisecond)
	app.mu.Lock()
	last := app.params[len(app.params)-1]
	app.mu.Unlock()
	assert.Equal(t, uint64(30), *last.QuoteEdgeInBps)
}

func TestHotReloader_DisabledStartStop(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "strategy:\n  quote_edge_bps: 10\n")

	reloader, err := NewHotReloader(configPath, HotReloadConfig{Enabled: false}, nil)
	require.NoError(t, err)
	require.NoError(t, reloader.Start(context.Background()))
	assert.NoError(t, reloader.Stop())
}

func TestParamsFromStrategyKeepsFairWhenZero(t *testing.T) {
	app := &mockApplier{fair: 77}
	require.NoError(t, ApplyTo(app)(appconfig.StrategyConfig{QuoteEdgeInBps: 5, Behavior: strategy.Join}))
	assert.Equal(t, uint64(77), app.fair)
	assert.Equal(t, strategy.Join, *app.params[0].Behavior)
}
