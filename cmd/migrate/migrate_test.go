package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/causal-correlation-engine/internal/infrastructure/config"
)

func TestRun_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		action string
		url    string
		errMsg string
	}{
		{name: "unknown action", action: "sideways", url: "postgres://localhost/cce", errMsg: "unknown migration action"},
		{name: "no database", action: "up", errMsg: "database.url is not configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			cfg.Database.URL = tt.url

			var out bytes.Buffer
			err := run(context.Background(), cfg, tt.action, zaptest.NewLogger(t), &out)
			assert.ErrorContains(t, err, tt.errMsg)
			assert.Empty(t, out.String())
		})
	}
}
