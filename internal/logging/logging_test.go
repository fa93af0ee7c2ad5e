package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	closer := Setup(Options{Level: "debug", File: path, MaxSizeMB: 1})
	t.Cleanup(func() { Setup(Options{}) })

	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	log.Debug().Str("component", "test").Msg("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"message":"hello file"`)
	require.Contains(t, string(data), `"component":"test"`)
}

func TestSetupUnknownLevelFallsBackToInfo(t *testing.T) {
	closer := Setup(Options{Level: "chatty"})
	t.Cleanup(func() { Setup(Options{}) })

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	require.NoError(t, closer.Close())
}
