package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-workout-planner/internal/auth"
	"ai-workout-planner/internal/workout"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("APP_ENV", "development")

	out, err := run(t, "token", "--user", "u-9", "--ttl", "1h")
	require.NoError(t, err)

	userID, err := auth.NewVerifier("cli-secret").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-9", userID)

	_, err = run(t, "token")
	assert.Error(t, err)
}

func TestTokenCommandRefusesProduction(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("APP_ENV", "production")
	_, err := run(t, "token", "--user", "u-9")
	assert.Error(t, err)
}

func TestGenerateCommandPrintsPlan(t *testing.T) {
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("FORCE_RULES", "true")
	t.Setenv("REDIS_URL", "")

	out, err := run(t, "generate", "--days", "4", "--duration", "30", "--goal", "endurance")
	require.NoError(t, err)

	var plan workout.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan), out)
	assert.Equal(t, 4, plan.DaysPerWeek)
	assert.Len(t, plan.Plan, 4)
	assert.Equal(t, workout.SourceRules, plan.Meta.Source)
}

func TestMetricsCleanupCommand(t *testing.T) {
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("REDIS_URL", "")

	out, err := run(t, "metrics-cleanup", "--days", "7")
	require.NoError(t, err)
	assert.Equal(t, "removed 0 metric rows older than 7 days\n", out)

	_, err = run(t, "metrics-cleanup", "--days", "-1")
	assert.Error(t, err)
}
