package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/phonetap/phonetap-server/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "PROD", "warn")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("dropped")
	log.Warn().Str("op", "create location").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "create location", entry["op"])
}

func TestSetupWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "PROD", "loud")

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestLeveledLogger(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	l := &logging.LeveledLogger{Logger: zerolog.New(&buf)}

	l.Infof("request %s", "POST /v1/payment_intents")
	require.Empty(t, buf.String())

	l.Errorf("request failed with %d", 500)
	require.Contains(t, buf.String(), "request failed with 500")
	require.Contains(t, buf.String(), `"level":"error"`)
}
