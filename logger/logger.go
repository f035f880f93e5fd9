package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/mensylisir/xmguest/common"
)

// Log is the global logger instance. It starts as an info-level console
// logger and is replaced by InitGlobalLogger.
var Log *XMLog

func init() {
	Log = &XMLog{Logger: newConsoleLogger(os.Stdout, false, logrus.InfoLevel)}
}

// XMLog wraps *logrus.Logger with host/guest scoped helpers.
type XMLog struct {
	*logrus.Logger
}

var defaultFieldsOrder = []string{common.HostName, common.GuestName, common.CommandName}

func displayMode(verbose bool) LevelNameDisplayMode {
	if verbose {
		return ShowAll
	}
	return ShowAboveWarn
}

func effectiveLevel(verbose bool, defaultLevel logrus.Level) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return defaultLevel
}

func newConsoleLogger(out io.Writer, verbose bool, defaultLevel logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(effectiveLevel(verbose, defaultLevel))
	l.SetOutput(out)
	l.SetFormatter(&Formatter{
		TimestampFormat:        "15:04:05",
		DisplayLevelName:       displayMode(verbose),
		DisableCaller:          true,
		FieldsDisplayWithOrder: defaultFieldsOrder,
	})
	return l
}

// InitGlobalLogger replaces Log. An empty outputPath logs to stdout;
// otherwise logs go to a daily-rotated file under outputPath.
func InitGlobalLogger(outputPath string, verbose bool, defaultLevel logrus.Level) error {
	l, err := NewXMLog(outputPath, verbose, defaultLevel)
	if err != nil {
		return err
	}
	Log = l
	return nil
}

// NewXMLog builds a standalone logger with the same rules as InitGlobalLogger.
func NewXMLog(outputPath string, verbose bool, defaultLevel logrus.Level) (*XMLog, error) {
	if outputPath == "" {
		return &XMLog{Logger: newConsoleLogger(os.Stdout, verbose, defaultLevel)}, nil
	}

	if err := os.MkdirAll(outputPath, common.FileMode0755); err != nil {
		return nil, fmt.Errorf("failed to create log output directory %s: %w", outputPath, err)
	}
	logFilePath := filepath.Join(outputPath, common.AppName+".log")
	writer, err := rotatelogs.New(
		logFilePath+".%Y%m%d",
		rotatelogs.WithLinkName(logFilePath),
		rotatelogs.WithMaxAge(7*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rotatelogs for %s: %w", logFilePath, err)
	}

	l := logrus.New()
	l.SetLevel(effectiveLevel(verbose, defaultLevel))
	l.SetReportCaller(true)
	fileFormatter := &Formatter{
		TimestampFormat:        "2006-01-02 15:04:05.000 MST",
		NoColors:               true,
		DisplayLevelName:       displayMode(verbose),
		FieldsDisplayWithOrder: defaultFieldsOrder,
		CustomCallerFormatter: func(frame *runtime.Frame) string {
			return fmt.Sprintf("[%s:%d]", filepath.Base(frame.File), frame.Line)
		},
	}
	l.SetFormatter(fileFormatter)

	writers := lfshook.WriterMap{}
	for _, level := range logrus.AllLevels {
		if l.IsLevelEnabled(level) {
			writers[level] = writer
		}
	}
	l.Hooks.Add(lfshook.NewHook(writers, fileFormatter))
	// The hook owns file output; the default stream would duplicate it.
	l.SetOutput(io.Discard)

	return &XMLog{Logger: l}, nil
}

// ForHost returns an entry tagged with the host field.
func (xl *XMLog) ForHost(host string) *logrus.Entry {
	return xl.WithField(common.HostName, host)
}

// ForGuest returns an entry tagged with both host and guest fields.
func (xl *XMLog) ForGuest(host, guest string) *logrus.Entry {
	return xl.WithFields(logrus.Fields{common.HostName: host, common.GuestName: guest})
}

func (xl *XMLog) InfofHost(host string, format string, args ...interface{}) {
	xl.ForHost(host).Infof(format, args...)
}

func (xl *XMLog) WarnfHost(host string, format string, args ...interface{}) {
	xl.ForHost(host).Warnf(format, args...)
}

func (xl *XMLog) DebugfHost(host string, format string, args ...interface{}) {
	xl.ForHost(host).Debugf(format, args...)
}

func (xl *XMLog) ErrorfHost(host string, err error, format string, args ...interface{}) {
	entry := xl.ForHost(host)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Errorf(format, args...)
}

func (xl *XMLog) InfofGuest(host, guest string, format string, args ...interface{}) {
	xl.ForGuest(host, guest).Infof(format, args...)
}

func (xl *XMLog) WarnfGuest(host, guest string, format string, args ...interface{}) {
	xl.ForGuest(host, guest).Warnf(format, args...)
}

func (xl *XMLog) DebugfGuest(host, guest string, format string, args ...interface{}) {
	xl.ForGuest(host, guest).Debugf(format, args...)
}
