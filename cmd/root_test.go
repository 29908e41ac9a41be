package cmd

import (
	"bytes"
	"testing"

	"speakmcp/internal/app"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "speakmcp", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestNewAppConfig_CarriesLogLevel(t *testing.T) {
	rootLogLevel = "error"
	defer func() { rootLogLevel = "" }()

	cfg := newAppConfig(app.ModeServe)
	assert.Equal(t, app.ModeServe, cfg.Mode)
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "speakmcp version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())

	assert.Equal(t, "speakmcp version 1.0.0\n", buf.String())
}

func TestVersionCommand(t *testing.T) {
	SetVersion("9.9.9")
	c := newVersionCmd()

	var buf bytes.Buffer
	c.SetOut(&buf)
	c.Run(c, nil)

	assert.Equal(t, "speakmcp version 9.9.9\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}

	for _, expected := range []string{"version", "serve", "tools", "status", "call", "test-server", "history"} {
		assert.True(t, found[expected], "expected subcommand %q", expected)
	}
}

func TestServeFlags(t *testing.T) {
	assert.NotNil(t, serveCmd.Flags().Lookup("stdio"))
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "table", want: OutputFormatTable},
		{in: "JSON", want: OutputFormatJSON},
		{in: "yaml", want: OutputFormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
