// Provides a generic interface for logging
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tim-beatham/khost/pkg/conf"
)

var (
	Log Logger
)

type Logger interface {
	WriteInfof(msg string, args ...interface{})
	WriteErrorf(msg string, args ...interface{})
	WriteWarnf(msg string, args ...interface{})
	WriteDebugf(msg string, args ...interface{})
	Writer() io.Writer
}

type LogrusLogger struct {
	logger *logrus.Logger
}

func (l *LogrusLogger) WriteInfof(msg string, args ...interface{}) {
	l.logger.Infof(msg, args...)
}

func (l *LogrusLogger) WriteErrorf(msg string, args ...interface{}) {
	l.logger.Errorf(msg, args...)
}

func (l *LogrusLogger) WriteWarnf(msg string, args ...interface{}) {
	l.logger.Warnf(msg, args...)
}

func (l *LogrusLogger) WriteDebugf(msg string, args ...interface{}) {
	l.logger.Debugf(msg, args...)
}

func (l *LogrusLogger) Writer() io.Writer {
	return l.logger.Writer()
}

func logrusLevel(confLevel conf.LogLevel) logrus.Level {
	switch confLevel {
	case conf.ERROR:
		return logrus.ErrorLevel
	case conf.WARNING:
		return logrus.WarnLevel
	case conf.DEBUG:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogrusLogger: creates a logger writing to stderr so that command
// output on stdout stays machine readable
func NewLogrusLogger(confLevel conf.LogLevel) *LogrusLogger {
	return NewLogrusLoggerWithOutput(confLevel, os.Stderr)
}

func NewLogrusLoggerWithOutput(confLevel conf.LogLevel, out io.Writer) *LogrusLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(out)
	logger.SetLevel(logrusLevel(confLevel))

	return &LogrusLogger{logger: logger}
}

func init() {
	SetLogger(NewLogrusLogger(conf.INFO))
}

func SetLogger(l Logger) {
	Log = l
}
