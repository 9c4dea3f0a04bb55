package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/cache"
	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/metrics"
	"github.com/davidleathers/causal-correlation-engine/internal/service/scenario"
	"github.com/davidleathers/causal-correlation-engine/internal/service/sectorimpact"
)

func testApp(t *testing.T, cfg *config.Config) (*app, *bytes.Buffer) {
	t.Helper()
	reg, err := metrics.NewRegistryWithProvider(metricnoop.NewMeterProvider(), "test")
	require.NoError(t, err)

	var out bytes.Buffer
	a, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), reg, &out)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a, &out
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Scenario.Start = "2025-01-06T09:00:00Z"
	cfg.Engine.TimeWindowMinutes = 10080
	return cfg
}

func TestParseScenarios(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{in: "all", want: scenario.Names()},
		{in: "", want: scenario.Names()},
		{in: "product_launch", want: []string{scenario.ProductLaunch}},
		{in: "supply_chain_crisis, competitive_market", want: []string{scenario.SupplyChainCrisis, scenario.CompetitiveMarket}},
		{in: "market_crash", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseScenarios(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-scenario", "product_launch", "-save", "-sector", "Energy", "-magnitude", "-0.3"})
	require.NoError(t, err)
	assert.Equal(t, "product_launch", f.scenarios)
	assert.True(t, f.save)
	assert.Equal(t, "Energy", f.sector)
	assert.InDelta(t, -0.3, f.magnitude, 1e-9)
	assert.Equal(t, "breakthrough", f.category)

	_, err = parseFlags([]string{"-nope"})
	assert.Error(t, err)
}

func TestApp_RunScenarios(t *testing.T) {
	a, out := testApp(t, testConfig())

	results, err := a.runScenarios(context.Background(), scenario.Names(), false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, res := range results {
		assert.Positive(t, res.Statistics.TotalEvents, res.Name)
		assert.Equal(t, uuid.Nil, res.SessionID, "nothing saved without stores")
	}
	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "EVENT CORRELATION ANALYSIS REPORT"))
	assert.Contains(t, text, "SCENARIO: competitive_market")
	assert.Contains(t, text, "DETECTED PATTERNS")
	assert.Contains(t, text, "CRITICAL PATHS")
}

func TestApp_SavesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis.Addr = mr.Addr()

	a, out := testApp(t, cfg)
	results, err := a.runScenarios(context.Background(), []string{scenario.CompetitiveMarket}, true)
	require.NoError(t, err)
	require.Len(t, results, 1)

	key := cache.SessionKey(results[0].SessionID)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, cfg.Redis.SessionTTL, mr.TTL(key))
	assert.Contains(t, out.String(), "Session saved: "+results[0].SessionID.String())
}

func TestApp_Propagate(t *testing.T) {
	a, out := testApp(t, testConfig())

	res, err := a.propagate(sectorimpact.Impact{Sector: sectorimpact.SectorAI, Magnitude: 0.25, Category: sectorimpact.Breakthrough})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Secondary)
	assert.Contains(t, out.String(), "SECTOR IMPACT: AI breakthrough +0.25")
	assert.Contains(t, out.String(), "x1.25 (primary)")

	_, err = a.propagate(sectorimpact.Impact{Sector: "Shipping", Magnitude: 0.1})
	assert.Error(t, err)
}
