package mqtt

import (
	"fmt"
	"strings"

	"cloupeer.io/displayagent/pkg/log"
)

// pahoLogger adapts our Logger to paho's log.Logger interface.
type pahoLogger struct {
	l     log.Logger
	warn bool
}

func (p pahoLogger) Println(v ...any) {
	p.write(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (p pahoLogger) Printf(format string, v ...any) {
	p.write(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (p pahoLogger) write(msg string) {
	if p.warn {
		p.l.Warn(msg)
		return
	}
	p.l.Debug(msg)
}
