package meter

import (
	"github.com/rs/zerolog"

	"github.com/ineyio/flowgate"
)

// LogMeter logs stream lifecycle events using zerolog.
type LogMeter struct {
	Logger zerolog.Logger
}

var _ flowgate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
func NewLogMeter(logger zerolog.Logger) *LogMeter {
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnStart(e flowgate.StartEvent) {
	m.Logger.Info().
		Str("request_id", e.RequestID).
		Str("provider", e.Provider).
		Str("model", e.Model).
		Bool("vision", e.WithVision).
		Int64("estimated_tokens", e.EstimatedIn).
		Msg("stream_start")
}

func (m *LogMeter) OnResult(e flowgate.ResultEvent) {
	if e.Success {
		m.Logger.Info().
			Str("request_id", e.RequestID).
			Str("provider", e.Provider).
			Str("model", e.Model).
			Int64("duration_ms", e.Duration.Milliseconds()).
			Int("deltas", e.Deltas).
			Int("bytes", e.Bytes).
			Msg("stream_result")
	} else {
		m.Logger.Warn().
			Str("request_id", e.RequestID).
			Str("provider", e.Provider).
			Str("model", e.Model).
			Int64("duration_ms", e.Duration.Milliseconds()).
			Int("deltas", e.Deltas).
			Err(e.Error).
			Msg("stream_error")
	}
}
