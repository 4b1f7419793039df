package temporal

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// missingValue fills in for the value of a trailing key without one.
const missingValue = "MISSING_VALUE"

// sdkLogger writes Temporal SDK log lines through zerolog. Keyvals become fields, errors are
// kept as error fields and With returns a child carrying the extra fields.
type sdkLogger struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*sdkLogger)(nil)
	_ log.WithLogger = (*sdkLogger)(nil)
)

// NewLogger returns the logger handed to the Temporal client and worker.
func NewLogger(logger zerolog.Logger) log.Logger {
	return &sdkLogger{logger: logger.With().Str("component", "temporal-sdk").Logger()}
}

func (l *sdkLogger) Debug(msg string, keyvals ...interface{}) { l.write(l.logger.Debug(), msg, keyvals) }
func (l *sdkLogger) Info(msg string, keyvals ...interface{})  { l.write(l.logger.Info(), msg, keyvals) }
func (l *sdkLogger) Warn(msg string, keyvals ...interface{})  { l.write(l.logger.Warn(), msg, keyvals) }
func (l *sdkLogger) Error(msg string, keyvals ...interface{}) { l.write(l.logger.Error(), msg, keyvals) }

func (l *sdkLogger) With(keyvals ...interface{}) log.Logger {
	return &sdkLogger{logger: l.logger.With().Fields(fields(keyvals)).Logger()}
}

func (l *sdkLogger) write(event *zerolog.Event, msg string, keyvals []interface{}) {
	event.Fields(fields(keyvals)).Msg(msg)
}

func fields(keyvals []interface{}) map[string]interface{} {
	if len(keyvals) == 0 {
		return nil
	}
	out := make(map[string]interface{}, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if i+1 == len(keyvals) {
			out[key] = missingValue
			continue
		}
		out[key] = keyvals[i+1]
	}
	return out
}
