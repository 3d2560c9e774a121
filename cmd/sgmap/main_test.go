package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sgmap/internal/config"
	"github.com/yairfalse/sgmap/internal/telemetry"
	"github.com/yairfalse/sgmap/pkg/resource"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitPartial, exitCode(errPartialFailure))
	assert.Equal(t, exitPartial, exitCode(fmt.Errorf("wrapped: %w", errPartialFailure)))
	assert.Equal(t, exitFatal, exitCode(errors.New("boom")))
}

func TestBuildConfig_FlagsOnly(t *testing.T) {
	cfg, err := buildConfig(auditFlags{
		regions:  []string{"us-east-1"},
		groups:   []string{"sg-1"},
		formats:  []string{"csv"},
		exclude:  []string{"emr"},
		failFast: true,
		debug:    true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"us-east-1"}, cfg.AWS.Regions)
	assert.Equal(t, []string{"sg-1"}, cfg.Audit.Groups)
	assert.Equal(t, []string{"csv"}, cfg.Output.Formats)
	assert.Equal(t, []string{"emr"}, cfg.Audit.ExcludeServices)
	assert.True(t, cfg.Audit.FailFast)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sgmap.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[aws]
regions = ["eu-west-1"]
profile = "audit"

[output]
formats = ["json"]
`), 0o600))

	cfg, err := buildConfig(auditFlags{configPath: path, regions: []string{"all"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"all"}, cfg.AWS.Regions)
	assert.Equal(t, "audit", cfg.AWS.Profile)
	assert.Equal(t, []string{"json"}, cfg.Output.Formats)
}

func TestBuildConfig_KeysCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accessKeys.csv")
	require.NoError(t, os.WriteFile(path, []byte("Access key ID,Secret access key\nAKIAEXAMPLE,secret\n"), 0o600))

	cfg, err := buildConfig(auditFlags{regions: []string{"us-east-1"}, keysCSV: path})
	require.NoError(t, err)

	assert.Equal(t, "AKIAEXAMPLE", cfg.AWS.AccessKeyID)
	assert.Equal(t, "secret", cfg.AWS.SecretAccessKey)
}

func TestBuildConfig_Invalid(t *testing.T) {
	_, err := buildConfig(auditFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")

	_, err = buildConfig(auditFlags{regions: []string{"us-east-1"}, formats: []string{"xlsx"}})
	require.Error(t, err)

	_, err = buildConfig(auditFlags{regions: []string{"us-east-1"}, keysCSV: "/nonexistent.csv"})
	require.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "report.txt", outputPath("report", config.FormatTable))
	assert.Equal(t, "report.json", outputPath("report", config.FormatJSON))
	assert.Equal(t, "report.csv", outputPath("report", config.FormatCSV))
}

func TestNewClassifier(t *testing.T) {
	c, err := newClassifier(config.ClassifyConfig{Rules: []config.RuleConfig{
		{Service: "rds", DescriptionContains: "Aurora"},
	}})
	require.NoError(t, err)

	got := c.Classify([]resource.NetworkInterface{{Description: "Aurora writer"}})
	assert.Equal(t, []resource.ServiceType{resource.ServiceRDS}, got)

	_, err = newClassifier(config.ClassifyConfig{Rules: []config.RuleConfig{{Service: "glue", TagKey: "x"}}})
	require.Error(t, err)
}

func newTestProvider(t *testing.T) *telemetry.Provider {
	t.Helper()
	tel, err := telemetry.NewProvider(context.Background(), config.OTELConfig{ServiceName: "test-sgmap"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return tel
}

func TestBuildEmitters_Stdout(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Formats = []string{config.FormatTable, config.FormatJSON}

	var out bytes.Buffer
	emit, closers, err := buildEmitters(cfg, newTestProvider(t), &out)
	require.NoError(t, err)
	assert.Empty(t, closers)
	assert.Equal(t, 2, emit.Len())

	require.NoError(t, emit.Emit(context.Background(), resource.Report{AccountID: "123456789012"}))
	assert.Contains(t, out.String(), "123456789012 security groups and associated services")
	assert.Contains(t, out.String(), `"account_id": "123456789012"`)
}

func TestBuildEmitters_Files(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Formats = []string{config.FormatCSV, config.FormatJSON}
	cfg.Output.Path = filepath.Join(dir, "report")
	cfg.Output.Baseline = filepath.Join(dir, "report.json")
	cfg.Output.PrometheusTextfile = filepath.Join(dir, "sgmap.prom")

	emit, closers, err := buildEmitters(cfg, newTestProvider(t), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Len(t, closers, 2)
	assert.Equal(t, 4, emit.Len())

	require.NoError(t, emit.Emit(context.Background(), resource.Report{}))
	closeAll(closers)

	for _, name := range []string{"report.csv", "report.json", "sgmap.prom"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
