package cli

import (
	"fmt"
	"strings"

	"github.com/yanun0323/logs"

	"github.com/meridian-quant/flowcore/eventbus"
)

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLevel(level string) logLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// pipelineLogger adapts the logs package to the bus logger contract,
// rendering key-value fields into the message line.
type pipelineLogger struct {
	min logLevel
}

var _ eventbus.Logger = (*pipelineLogger)(nil)

// NewLogger builds the process logger at the given verbosity. Unknown
// levels fall back to info.
func NewLogger(level string) eventbus.Logger {
	return &pipelineLogger{min: parseLevel(level)}
}

func renderFields(fields []any) string {
	if len(fields) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 == 1 {
		fmt.Fprintf(&sb, " %v", fields[len(fields)-1])
	}
	return sb.String()
}

func (l *pipelineLogger) Debug(msg string, fields ...any) {
	if l.min > levelDebug {
		return
	}
	logs.Debugf("%s%s", msg, renderFields(fields))
}

func (l *pipelineLogger) Info(msg string, fields ...any) {
	if l.min > levelInfo {
		return
	}
	logs.Infof("%s%s", msg, renderFields(fields))
}

func (l *pipelineLogger) Warn(msg string, fields ...any) {
	if l.min > levelWarn {
		return
	}
	logs.Warnf("%s%s", msg, renderFields(fields))
}

func (l *pipelineLogger) Error(msg string, fields ...any) {
	logs.Errorf("%s%s", msg, renderFields(fields))
}
