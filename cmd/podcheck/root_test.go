package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/podcheck/constants"
	"github.com/joseph-ayodele/podcheck/internal/common"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	log = newLogger(&buf, "", "text")
	assert.True(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, log.Enabled(context.Background(), slog.LevelDebug))
	log.Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "podcheck.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline]\nimages_dir = \"from-file\"\nworkers = 2\n"), 0o644))

	gf := &globalFlags{configPath: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&gf.mode, "mode", "", "")
	cmd.Flags().IntVar(&gf.workers, "workers", 0, "")
	cmd.Flags().StringVar(&gf.outputDir, "output-dir", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--mode", "DATALAB-API", "--workers", "6"}))

	cfg, err := gf.loadConfig(cmd, false)
	require.NoError(t, err)
	assert.Equal(t, constants.ModeDatalabAPI, cfg.Pipeline.Mode)
	assert.Equal(t, 6, cfg.Pipeline.Workers)
	assert.Equal(t, "from-file", cfg.Pipeline.ImagesDir)
	assert.NotEmpty(t, cfg.Pipeline.OutputDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	gf := &globalFlags{configPath: filepath.Join(t.TempDir(), "absent.toml")}
	_, err := gf.loadConfig(&cobra.Command{Use: "test"}, false)
	assert.Error(t, err)
}

func TestOutcomesCmd_RejectsBadRunID(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"outcomes", "not-a-uuid"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run id")
}

func TestDash(t *testing.T) {
	assert.Equal(t, "-", dash(""))
	assert.Equal(t, "OK", dash("OK"))
}

func TestParseModes(t *testing.T) {
	modes, err := parseModes(" datalab, gdocai ,DATALAB_API,")
	require.NoError(t, err)
	assert.Equal(t, []constants.Mode{constants.ModeDatalabAPI, constants.ModeGDocAI}, modes)

	_, err = parseModes("datalab,tesseract")
	assert.ErrorIs(t, err, common.ErrUnsupportedMode)
	_, err = parseModes(" , ")
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestModeConfigs(t *testing.T) {
	base := common.DefaultConfig()
	base.Pipeline.OutputDir = "out"
	base.Datalab.APIKey = "k"
	base.GDocAI = common.GDocAIConfig{ProjectID: "p", Location: "us", ProcessorID: "x"}

	cfgs, err := modeConfigs(base, []constants.Mode{constants.ModeDatalabAPI, constants.ModeGDocAI})
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, filepath.Join("out", "datalab_api"), cfgs[0].Pipeline.OutputDir)
	assert.Equal(t, constants.ModeGDocAI, cfgs[1].Pipeline.Mode)
	assert.Equal(t, filepath.Join("out", "gdocai"), cfgs[1].Pipeline.OutputDir)
	assert.Equal(t, "out", base.Pipeline.OutputDir)

	base.OpenAI.APIKey = ""
	_, err = modeConfigs(base, []constants.Mode{constants.ModeOpenAIAPI})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}
