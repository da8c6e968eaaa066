package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LoggerAdapter routes Temporal SDK logs into zerolog.
type LoggerAdapter struct {
	logger zerolog.Logger
}

func NewLoggerAdapter(logger zerolog.Logger) log.Logger {
	return &LoggerAdapter{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

// fields turns SDK key/value pairs into a zerolog field map. A dangling key
// is kept with a nil value.
func fields(keyvals []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 < len(keyvals) {
			out[key] = keyvals[i+1]
		} else {
			out[key] = nil
		}
	}
	return out
}

func (a *LoggerAdapter) Debug(msg string, keyvals ...interface{}) {
	a.logger.Debug().Fields(fields(keyvals)).Msg(msg)
}

func (a *LoggerAdapter) Info(msg string, keyvals ...interface{}) {
	a.logger.Info().Fields(fields(keyvals)).Msg(msg)
}

func (a *LoggerAdapter) Warn(msg string, keyvals ...interface{}) {
	a.logger.Warn().Fields(fields(keyvals)).Msg(msg)
}

func (a *LoggerAdapter) Error(msg string, keyvals ...interface{}) {
	a.logger.Error().Fields(fields(keyvals)).Msg(msg)
}
