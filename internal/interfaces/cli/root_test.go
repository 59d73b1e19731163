package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/turtacn/kgeval/internal/config"
	apperrors "github.com/turtacn/kgeval/pkg/errors"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// prepare runs persistentPreRun on a standalone command after parsing args.
func prepare(t *testing.T, cmd *cobra.Command, opts *RootOptions, args ...string) *CLIContext {
	t.Helper()
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, persistentPreRun(cmd, config.NewViper(), opts))
	cliCtx, err := GetCLIContext(cmd)
	require.NoError(t, err)
	return cliCtx
}

func TestNewRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"validate", "sweep", "serve", "migrate", "graph", "cache", "version"}, names)

	for _, flag := range []string{"config", "log-level", "output", "verbose"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestPersistentPreRun_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kgeval.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataset:\n  name: WN11\neval:\n  start: 2\n  end: 7\nlog:\n  level: warn\n"), 0o644))

	cliCtx := prepare(t, newValidateCmd(), &RootOptions{ConfigPath: path, OutputFormat: "json"}, "--end", "5", "--epoch", "40")

	cfg := cliCtx.Config
	assert.Equal(t, "WN11", cfg.Dataset.Name, "file value")
	assert.Equal(t, 2, cfg.Eval.Start, "file value")
	assert.Equal(t, 5, cfg.Eval.End, "flag beats file")
	assert.Equal(t, 40, cfg.Eval.Epoch)
	assert.Equal(t, config.DefaultDim, cfg.Eval.Dim, "default")
	assert.Equal(t, zap.WarnLevel, cliCtx.Level.Level())
	assert.Equal(t, "json", cliCtx.OutputFormat)
	assert.Equal(t, path, cliCtx.ConfigPath)
}

func TestPersistentPreRun_EnvOverride(t *testing.T) {
	t.Setenv("KGEVAL_DATASET_NAME", "FB15k")
	cliCtx := prepare(t, newValidateCmd(), &RootOptions{})
	assert.Equal(t, "FB15k", cliCtx.Config.Dataset.Name)

	cliCtx = prepare(t, newValidateCmd(), &RootOptions{}, "--data", "WN18")
	assert.Equal(t, "WN18", cliCtx.Config.Dataset.Name)
}

func TestPersistentPreRun_Verbose(t *testing.T) {
	cliCtx := prepare(t, newValidateCmd(), &RootOptions{Verbose: true})
	assert.Equal(t, zap.DebugLevel, cliCtx.Level.Level())
}

func TestPersistentPreRun_InvalidConfig(t *testing.T) {
	cmd := newValidateCmd()
	cmd.SetContext(context.Background())
	require.NoError(t, cmd.ParseFlags([]string{"--start", "9", "--end", "3"}))
	err := persistentPreRun(cmd, config.NewViper(), &RootOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eval.start")
}

func TestPersistentPreRun_MissingConfigFile(t *testing.T) {
	cmd := newValidateCmd()
	cmd.SetContext(context.Background())
	err := persistentPreRun(cmd, config.NewViper(), &RootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	cmd.SetContext(context.Background())
	_, err = GetCLIContext(cmd)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))
}

func TestVersionCommand(t *testing.T) {
	Version, GitCommit = "1.2.3", "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, err := execute(t, "version", "-o", "json")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc123", info.Commit)
	assert.NotEmpty(t, info.GoVersion)

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kgeval 1.2.3 (commit abc123")
}

func TestExecute_UnknownCommand(t *testing.T) {
	_, err := execute(t, "train")
	assert.Error(t, err)
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"A", "BB"}, [][]string{{"xxx", "y"}, {"z"}})
	want := "A    BB\n" +
		"---  --\n" +
		"xxx  y \n" +
		"z      \n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintResult_Formats(t *testing.T) {
	data := runTable{}
	for _, tc := range []struct {
		format string
		want   string
	}{
		{"json", "[]\n"},
		{"table", FormatTable(data.TableHeaders(), nil)},
		{"text", "[]\n"},
	} {
		t.Run(tc.format, func(t *testing.T) {
			cmd := &cobra.Command{}
			var buf bytes.Buffer
			cmd.SetOut(&buf)
			cmd.SetContext(context.WithValue(context.Background(), cliContextKey{}, &CLIContext{OutputFormat: tc.format}))
			require.NoError(t, PrintResult(cmd, data))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestPrintResult_NoContextFallsBackToJSON(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	require.NoError(t, PrintResult(cmd, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}
