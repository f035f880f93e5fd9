package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mensylisir/xmguest/common"
)

// Hook to capture log entries for testing
type testHook struct {
	mu      sync.Mutex
	Entries []*logrus.Entry
}

func (h *testHook) Levels() []logrus.Level { return logrus.AllLevels }
func (h *testHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Entries = append(h.Entries, entry)
	return nil
}
func (h *testHook) LastEntry() *logrus.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Entries) == 0 {
		return nil
	}
	return h.Entries[len(h.Entries)-1]
}

func TestDefaultLoggerIsInitialized(t *testing.T) {
	require.NotNil(t, Log)
	require.NotNil(t, Log.Logger)
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}

func TestNewXMLog_ConsoleLevels(t *testing.T) {
	l, err := NewXMLog("", false, logrus.WarnLevel)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l, err = NewXMLog("", true, logrus.WarnLevel)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel(), "verbose forces debug")
}

func TestNewXMLog_FileOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := NewXMLog(dir, false, logrus.InfoLevel)
	require.NoError(t, err)

	l.InfofHost("node1", "hello %s", "file")

	var content []byte
	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, common.AppName+".log.*"))
		if len(matches) == 0 {
			return false
		}
		content, _ = os.ReadFile(matches[0])
		return len(content) > 0
	}, 2*time.Second, 20*time.Millisecond)

	line := string(content)
	assert.Contains(t, line, "hello file")
	assert.Contains(t, line, "Host:node1")
	assert.NotContains(t, line, "\x1b[", "file output has no colors")
}

func TestHostAndGuestHelpersTagFields(t *testing.T) {
	base := logrus.New()
	base.SetOutput(&bytes.Buffer{})
	base.SetLevel(logrus.DebugLevel)
	hook := &testHook{}
	base.AddHook(hook)
	l := &XMLog{Logger: base}

	l.WarnfHost("node1", "disk at %d%%", 91)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "node1", entry.Data[common.HostName])
	assert.Equal(t, "disk at 91%", entry.Message)

	l.DebugfGuest("node1", "101", "entering")
	entry = hook.LastEntry()
	assert.Equal(t, "node1", entry.Data[common.HostName])
	assert.Equal(t, "101", entry.Data[common.GuestName])

	l.ErrorfHost("node1", assert.AnError, "failed")
	entry = hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, assert.AnError, entry.Data[logrus.ErrorKey])
}

func TestFormatter_FieldOrderAndLevel(t *testing.T) {
	f := &Formatter{
		DisableTimestamp:       true,
		NoColors:               true,
		DisplayLevelName:       ShowAboveWarn,
		FieldsDisplayWithOrder: []string{common.HostName, common.GuestName},
	}
	entry := &logrus.Entry{
		Level:   logrus.InfoLevel,
		Message: "msg",
		Data: logrus.Fields{
			"zeta":           1,
			common.GuestName: "101",
			"alpha":          2,
			common.HostName:  "node1",
		},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[Host:node1 | Guest:101 | alpha:2 | zeta:1] msg\n", string(out))

	entry.Level = logrus.WarnLevel
	entry.Data = logrus.Fields{}
	out, err = f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[WARN] msg\n", string(out))
}

func TestFormatter_HideKeysAndTruncate(t *testing.T) {
	f := &Formatter{
		DisableTimestamp:    true,
		DisplayLevelName:    HideAll,
		HideKeys:            true,
		MaxFieldValueLength: 3,
	}
	entry := &logrus.Entry{Level: logrus.ErrorLevel, Message: "m", Data: logrus.Fields{"k": "abcdef"}}
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "[abc...] m"))
}
