package telemetry

import (
	"fmt"
	"io"
	"log"
)

const (
	ServiceName    = "keeper-registry"
	LogPkgStdFlags = log.Lshortfile
)

// WrapLogger returns a logger writing to the same output as logger with a
// namespaced prefix. A nil logger discards all output.
func WrapLogger(logger *log.Logger, ns string) *log.Logger {
	var w io.Writer = io.Discard
	if logger != nil {
		w = logger.Writer()
	}

	return log.New(w, fmt.Sprintf("[%s | %s]", ServiceName, ns), LogPkgStdFlags)
}
