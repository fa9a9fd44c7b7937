package logging

import (
	"context"
	"fmt"

	cloudlogging "cloud.google.com/go/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"
)

// EntrySink receives structured entries. *cloudlogging.Logger satisfies it.
type EntrySink interface {
	Log(e cloudlogging.Entry)
	Flush() error
}

// WithCloud tees base into the Cloud Logging log named logName. The returned
// close func flushes and releases the client; call it after the last Sync.
func WithCloud(ctx context.Context, base *zap.Logger, projectID, logName string, opts ...option.ClientOption) (*zap.Logger, func() error, error) {
	if projectID == "" {
		return nil, nil, fmt.Errorf("cloud logging needs a project id")
	}
	client, err := cloudlogging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create cloud logging client: %w", err)
	}
	logger := Tee(base, client.Logger(logName), zapcore.InfoLevel)
	return logger, client.Close, nil
}

// Tee returns base with every entry at or above level also sent to sink.
func Tee(base *zap.Logger, sink EntrySink, level zapcore.LevelEnabler) *zap.Logger {
	cloud := &cloudCore{LevelEnabler: level, sink: sink}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, cloud)
	}))
}

type cloudCore struct {
	zapcore.LevelEnabler
	sink   EntrySink
	fields []zapcore.Field
}

func (c *cloudCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &cloudCore{LevelEnabler: c.LevelEnabler, sink: c.sink, fields: merged}
}

func (c *cloudCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *cloudCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	payload := enc.Fields
	payload["message"] = ent.Message
	if ent.LoggerName != "" {
		payload["logger"] = ent.LoggerName
	}
	if ent.Caller.Defined {
		payload["caller"] = ent.Caller.TrimmedPath()
	}
	if ent.Stack != "" {
		payload["stacktrace"] = ent.Stack
	}

	c.sink.Log(cloudlogging.Entry{
		Timestamp: ent.Time,
		Severity:  severity(ent.Level),
		Payload:   payload,
	})
	return nil
}

// Sync blocks until buffered entries reach Cloud Logging.
func (c *cloudCore) Sync() error {
	return c.sink.Flush()
}

func severity(level zapcore.Level) cloudlogging.Severity {
	switch level {
	case zapcore.DebugLevel:
		return cloudlogging.Debug
	case zapcore.InfoLevel:
		return cloudlogging.Info
	case zapcore.WarnLevel:
		return cloudlogging.Warning
	case zapcore.ErrorLevel:
		return cloudlogging.Error
	case zapcore.DPanicLevel:
		return cloudlogging.Critical
	case zapcore.PanicLevel:
		return cloudlogging.Alert
	case zapcore.FatalLevel:
		return cloudlogging.Emergency
	default:
		return cloudlogging.Default
	}
}
