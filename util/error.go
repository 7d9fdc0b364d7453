package util

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ContextualError carries log fields alongside an error so the top level can
// log it as one structured line.
type ContextualError struct {
	RealError error
	Fields    map[string]any
	Context   string
}

func NewContextualError(msg string, fields map[string]any, realError error) *ContextualError {
	return &ContextualError{Context: msg, Fields: fields, RealError: realError}
}

// ContextualizeIfNeeded wraps err with msg unless a ContextualError is already
// somewhere in its chain.
func ContextualizeIfNeeded(msg string, err error) error {
	var ce *ContextualError
	if errors.As(err, &ce) {
		return err
	}
	return NewContextualError(msg, nil, err)
}

// LogWithContextIfNeeded logs the first ContextualError in err's chain with
// its fields, or err itself under msg.
func LogWithContextIfNeeded(msg string, err error, l *logrus.Logger) {
	var ce *ContextualError
	if errors.As(err, &ce) {
		ce.Log(l)
		return
	}
	l.WithError(err).Error(msg)
}

func (ce *ContextualError) Error() string {
	if ce.RealError == nil {
		return ce.Context
	}
	if len(ce.Fields) == 0 {
		return fmt.Sprintf("%s: %v", ce.Context, ce.RealError)
	}
	return fmt.Sprintf("%s (%v): %v", ce.Context, ce.Fields, ce.RealError)
}

func (ce *ContextualError) Unwrap() error {
	return ce.RealError
}

func (ce *ContextualError) Log(lr *logrus.Logger) {
	e := lr.WithFields(ce.Fields)
	if ce.RealError != nil {
		e = e.WithError(ce.RealError)
	}
	e.Error(ce.Context)
}
