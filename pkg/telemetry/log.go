package telemetry

import "go.uber.org/zap"

// LogSink writes reports to a zap logger.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

// Publish logs the report as one info line.
func (s *LogSink) Publish(r Report) error {
	fields := make([]zap.Field, 0, 2*len(r.Readings))
	for _, rd := range r.Readings {
		if !rd.Valid {
			fields = append(fields, zap.Skip())
			continue
		}
		fields = append(fields,
			zap.Uint16(rd.Channel, rd.Raw),
			zap.Float32(rd.Channel+"_volts", rd.Volts),
		)
	}
	s.log.Info("averages", fields...)
	return nil
}

// Close does nothing; the logger belongs to the caller.
func (s *LogSink) Close() error { return nil }
