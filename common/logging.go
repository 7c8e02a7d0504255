// Package common provides the logging and fault-handling foundation shared by
// every marhaba component. It configures a process-wide structured logger with
// intelligent output routing and defines the typed fault taxonomy that
// component boundaries speak.
//
// The logging side of the package implements a custom output splitter that
// automatically routes log messages based on their severity:
//   - Error-level messages are sent to stderr
//   - All other messages (info, warn, debug) are sent to stdout
//
// This separation enables proper log aggregation in containerized
// environments where stdout and stderr streams are collected separately, and
// keeps interactive use readable: normal operation stays on stdout while
// failures stand out on stderr.
//
// Usage:
//
//	common.Logger.Info("session store ready")
//	common.Logger.WithFields(logrus.Fields{
//	    "correlation_id": cid,
//	    "session_id":     sid,
//	}).Warn("session version conflict")
//
// Components should not construct their own logrus instances; they either use
// the package-level Logger or accept one injected at construction so tests can
// capture output.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide structured logger. It is configured once at init
// and reconfigured by main via ConfigureLogger after settings are loaded.
var Logger = logrus.New()

// OutputSplitter implements io.Writer and routes log output to stdout or
// stderr depending on the rendered log level. logrus writes one formatted
// line per entry, so inspecting the serialized bytes for the error level
// marker is sufficient.
type OutputSplitter struct{}

// Write routes a single formatted log line. Lines containing the error level
// marker go to stderr; everything else goes to stdout.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

func init() {
	Logger.SetOutput(&OutputSplitter{})
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	Logger.SetLevel(logrus.InfoLevel)
}
