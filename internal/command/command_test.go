package command

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingly-dev/tea-assistant/internal/auth"
	"github.com/tingly-dev/tea-assistant/internal/command/options"
	"github.com/tingly-dev/tea-assistant/internal/config"
	"github.com/tingly-dev/tea-assistant/internal/record"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	path := writeConfig(t, "admin:\n  jwt_secret: shop-secret\n")

	cmd := TokenCommand(&path)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--staff", "lan"})
	require.NoError(t, cmd.Execute())

	claims, err := auth.NewJWTManager("shop-secret").ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "lan", claims.StaffID)
}

func TestTokenCommandErrors(t *testing.T) {
	path := writeConfig(t, "admin:\n  jwt_secret: shop-secret\n")
	cmd := TokenCommand(&path)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute(), "staff id is required")

	empty := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv(config.EnvAdminJWTSecret, "")
	cmd = TokenCommand(&empty)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--staff", "lan"})
	assert.ErrorIs(t, cmd.Execute(), auth.ErrMissingSecret)
}

func TestVersionCommand(t *testing.T) {
	cmd := VersionCommand(BuildInfo{Version: "1.2.3", GitCommit: "abc123"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    1.2.3")
	assert.Contains(t, out.String(), "Git Commit: abc123")
}

func resolve(t *testing.T, cfg *config.Config, args ...string) (options.ServeOptions, error) {
	t.Helper()
	var flags options.ServeFlags
	var got options.ServeOptions
	var resolveErr error
	cmd := &cobra.Command{
		Use: "serve",
		RunE: func(cmd *cobra.Command, _ []string) error {
			got, resolveErr = options.ResolveServeOptions(cmd, flags, cfg)
			return nil
		},
	}
	options.AddServeFlags(cmd, &flags)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return got, resolveErr
}

func TestResolveServeOptionsPriority(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Server.Port = 9000
	cfg.Server.Debug = true
	cfg.Upstream.RecordMode = "response"

	opts, err := resolve(t, cfg)
	require.NoError(t, err)
	assert.Equal(t, 9000, opts.Port)
	assert.True(t, opts.Debug)
	assert.Equal(t, record.ModeResponse, opts.RecordMode)
	assert.Equal(t, filepath.Join(dir, config.RecordDirName), opts.RecordDir)
	assert.True(t, opts.Watch)

	opts, err = resolve(t, cfg, "--port", "9100", "--debug=false", "--record-mode", "", "--host", "0.0.0.0", "--no-watch")
	require.NoError(t, err)
	assert.Equal(t, 9100, opts.Port)
	assert.False(t, opts.Debug)
	assert.Equal(t, record.ModeOff, opts.RecordMode)
	assert.Equal(t, "0.0.0.0", opts.Host)
	assert.False(t, opts.Watch)

	opts.Apply(cfg)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "", cfg.Upstream.RecordMode)

	_, err = resolve(t, cfg, "--record-mode", "everything")
	assert.Error(t, err)
}
