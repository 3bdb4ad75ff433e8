package notify

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleNotifier(t *testing.T) {
	previous := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = previous })

	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)
	n.Notify(Notification{Severity: SeverityError, Title: "Update", Body: "disk full"})
	n.Notify(Notification{Severity: SeverityOK, Body: "done"})

	assert.Equal(t, "[error] Update: disk full\n[ok] done\n", buf.String())
}

func TestLogNotifierLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	n := &LogNotifier{Logger: logger}

	n.Notify(Notification{Severity: SeverityError, Title: "t", Body: "failed"})
	n.Notify(Notification{Severity: SeverityOK, Title: "t", Body: "ok"})

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, logrus.ErrorLevel, entries[0].Level)
	assert.Equal(t, "failed", entries[0].Message)
	assert.Equal(t, "t", entries[0].Data["title"])
	assert.Equal(t, logrus.InfoLevel, entries[1].Level)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.Notify(Notification{Severity: SeverityWarning, Body: "careful"})

	assert.Len(t, a.Notifications(), 1)
	assert.Equal(t, a.Notifications(), b.Notifications())
	assert.Equal(t, "warning", a.Notifications()[0].Severity.String())

	Discard.Notify(Notification{Body: "ignored"})
}
