// Package sklog is the process-wide leveled logger. Output goes to stderr
// through stdlogging until SetLogger installs something else.
package sklog

import (
	"os"

	"go.skia.org/bisection/go/sklog/sklogimpl"
	"go.skia.org/bisection/go/sklog/stdlogging"
)

// Lines logged before main() would otherwise be dropped.
func init() {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr, true))
}

// SetLogger replaces the logging backend, e.g. to silence logs in a CLI or to
// capture them in a test.
func SetLogger(l sklogimpl.Logger) {
	sklogimpl.SetLogger(l)
}

// The plain functions format like fmt.Sprint, the f variants like
// fmt.Sprintf.
func Debug(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, "", msg...)
}

func Debugf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Debug, format, v...)
}

func Info(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, "", msg...)
}

func Infof(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Info, format, v...)
}

func Warning(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, "", msg...)
}

func Warningf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Warning, format, v...)
}

func Error(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, "", msg...)
}

func Errorf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Error, format, v...)
}

// Fatal* exits the program after logging.
func Fatal(msg ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, "", msg...)
}

func Fatalf(format string, v ...interface{}) {
	sklogimpl.Log(1, sklogimpl.Fatal, format, v...)
}

func Flush() {
	sklogimpl.Flush()
}
