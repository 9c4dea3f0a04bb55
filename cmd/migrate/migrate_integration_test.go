//go:build integration

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil"
	"github.com/davidleathers/causal-correlation-engine/internal/testutil/containers"
)

func TestRun_UpThenVersion(t *testing.T) {
	pg := containers.StartPostgres(t)
	cfg := config.Defaults()
	cfg.Database.URL = pg.ConnectionString
	ctx := testutil.TestContext(t)

	var out bytes.Buffer
	require.NoError(t, run(ctx, cfg, "up", zaptest.NewLogger(t), &out))
	assert.Equal(t, "version=3 dirty=false applied=true\n", out.String())

	out.Reset()
	require.NoError(t, run(ctx, cfg, "version", zaptest.NewLogger(t), &out))
	assert.Equal(t, "version=3 dirty=false applied=false\n", out.String())
}
