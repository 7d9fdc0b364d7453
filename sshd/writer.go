package sshd

import (
	"fmt"
	"io"
)

// StringWriter is handed to every command callback for its replies.
type StringWriter interface {
	WriteLine(string) error
	Write(string) error
	Printf(format string, a ...any) error
	GetWriter() io.Writer
}

type stringWriter struct {
	w io.Writer
}

// NewStringWriter wraps w for use by command callbacks.
func NewStringWriter(w io.Writer) StringWriter {
	return &stringWriter{w: w}
}

func (w *stringWriter) WriteLine(s string) error {
	return w.Write(s + "\n")
}

func (w *stringWriter) Write(s string) error {
	_, err := io.WriteString(w.w, s)
	return err
}

func (w *stringWriter) Printf(format string, a ...any) error {
	_, err := fmt.Fprintf(w.w, format, a...)
	return err
}

func (w *stringWriter) GetWriter() io.Writer {
	return w.w
}
