package logger

import (
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	resetColorCode         = 0
	defaultFieldSeparator  = " | "
	defaultTimestampFormat = time.RFC3339
)

// LevelNameDisplayMode defines how log level names are displayed.
type LevelNameDisplayMode int

const (
	// ShowAll shows all level names.
	ShowAll LevelNameDisplayMode = iota
	// ShowAboveWarn shows level names for WARN, ERROR, FATAL, PANIC.
	ShowAboveWarn
	// ShowAboveError shows level names for ERROR, FATAL, PANIC.
	ShowAboveError
	// HideAll hides all level names.
	HideAll
)

// Formatter implements logrus.Formatter.
//
// Output shape: "<time> [LEVL] [Host:h | Guest:g | k:v] message (file:line func)".
type Formatter struct {
	TimestampFormat  string
	NoColors         bool
	ForceColors      bool
	DisableTimestamp bool
	DisplayLevelName LevelNameDisplayMode
	// ShowFullLevel prints "WARNING" instead of "WARN".
	ShowFullLevel bool
	// HideKeys prints "[value]" instead of "[key:value]".
	HideKeys bool
	// FieldsDisplayWithOrder lists keys printed first, in order; the rest follow alphabetically.
	FieldsDisplayWithOrder []string
	FieldSeparator         string
	DisableCaller          bool
	CustomCallerFormatter  func(*runtime.Frame) string
	// MaxFieldValueLength truncates long field values; 0 disables truncation.
	MaxFieldValueLength int
}

// Format formats the log entry.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	if !f.DisableTimestamp {
		timestampFormat := f.TimestampFormat
		if timestampFormat == "" {
			timestampFormat = defaultTimestampFormat
		}
		b.WriteString(entry.Time.Format(timestampFormat))
		b.WriteString(" ")
	}

	if f.showLevel(entry.Level) {
		useColors := f.ForceColors || !f.NoColors
		if useColors {
			fmt.Fprintf(b, "\x1b[%dm", getColorByLevel(entry.Level))
		}
		levelStr := entry.Level.String()
		if !f.ShowFullLevel && len(levelStr) > 4 {
			levelStr = levelStr[:4]
		}
		fmt.Fprintf(b, "[%s]", strings.ToUpper(levelStr))
		if useColors {
			fmt.Fprintf(b, "\x1b[%dm", resetColorCode)
		}
		b.WriteString(" ")
	}

	if len(entry.Data) > 0 {
		separator := f.FieldSeparator
		if separator == "" {
			separator = defaultFieldSeparator
		}
		b.WriteString("[")
		for i, key := range f.orderedKeys(entry.Data) {
			if i > 0 {
				b.WriteString(separator)
			}
			f.writeKeyValue(b, key, entry.Data[key])
		}
		b.WriteString("] ")
	}

	b.WriteString(entry.Message)

	if !f.DisableCaller && entry.HasCaller() {
		b.WriteString(" ")
		f.writeCaller(b, entry)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *Formatter) showLevel(level logrus.Level) bool {
	switch f.DisplayLevelName {
	case ShowAll:
		return true
	case ShowAboveWarn:
		return level <= logrus.WarnLevel
	case ShowAboveError:
		return level <= logrus.ErrorLevel
	default:
		return false
	}
}

func (f *Formatter) orderedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	seen := make(map[string]bool, len(f.FieldsDisplayWithOrder))
	for _, key := range f.FieldsDisplayWithOrder {
		if _, ok := data[key]; ok && !seen[key] {
			keys = append(keys, key)
			seen[key] = true
		}
	}
	rest := make([]string, 0, len(data)-len(keys))
	for key := range data {
		if !seen[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func (f *Formatter) writeKeyValue(b *bytes.Buffer, key string, value interface{}) {
	valStr := fmt.Sprintf("%v", value)
	if f.MaxFieldValueLength > 0 && len(valStr) > f.MaxFieldValueLength {
		valStr = valStr[:f.MaxFieldValueLength] + "..."
	}
	if f.HideKeys {
		b.WriteString(valStr)
		return
	}
	fmt.Fprintf(b, "%s:%s", key, valStr)
}

func (f *Formatter) writeCaller(b *bytes.Buffer, entry *logrus.Entry) {
	if f.CustomCallerFormatter != nil {
		b.WriteString(f.CustomCallerFormatter(entry.Caller))
		return
	}
	callerFunc := filepath.Base(entry.Caller.Function)
	if parts := strings.Split(callerFunc, "."); len(parts) > 1 {
		callerFunc = parts[len(parts)-1]
	}
	fmt.Fprintf(b, "(%s:%d %s)", filepath.Base(entry.Caller.File), entry.Caller.Line, callerFunc)
}

func getColorByLevel(level logrus.Level) int {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return colorBlue
	case logrus.WarnLevel:
		return colorYellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return colorRed
	default:
		return colorGray
	}
}

const (
	colorRed    = 31
	colorYellow = 33
	colorBlue   = 36
	colorGray   = 37
)
