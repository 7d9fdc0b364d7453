package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
)

// HookLogger routes the logrus logs through the service logger so they end up
// in the system log. logrus output is discarded.
func HookLogger(l *logrus.Logger) {
	l.AddHook(&logHook{sl: logger})
	l.SetOutput(io.Discard)
}

type logHook struct {
	sl service.Logger
}

func (h *logHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to read entry, %v", err)
		return err
	}

	switch entry.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return h.sl.Error(line)
	case logrus.WarnLevel:
		return h.sl.Warning(line)
	case logrus.InfoLevel, logrus.DebugLevel:
		return h.sl.Info(line)
	default:
		return nil
	}
}

func (h *logHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
