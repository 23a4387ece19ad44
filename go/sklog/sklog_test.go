package sklog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.skia.org/bisection/go/sklog/sklogimpl"
)

type captureLogger struct {
	lines []string
}

func (c *captureLogger) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	msg := fmt.Sprint(args...)
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	c.lines = append(c.lines, severity.String()+" "+msg)
}

func (c *captureLogger) Flush() {}

func TestLogFunctions_CaptureLogger_ReceivesFormattedLines(t *testing.T) {
	c := &captureLogger{}
	SetLogger(c)
	defer SetLogger(nil)

	Infof("picked %s", "job-1")
	Warning("conflict")
	Debugf("%d retries", 2)

	assert.Equal(t, []string{"INFO picked job-1", "WARNING conflict", "DEBUG 2 retries"}, c.lines)
}
