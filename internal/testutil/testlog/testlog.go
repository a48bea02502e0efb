package testlog

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var configureOnce sync.Once

// Start configures the global logger for test output and tags the
// current test. Safe to call from every test.
func Start(t *testing.T) {
	t.Helper()
	configureOnce.Do(func() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.NoColor = true
			w.PartsExclude = []string{zerolog.TimestampFieldName}
		}))
	})
	log.Debug().Str("test", t.Name()).Msg("start")
}
