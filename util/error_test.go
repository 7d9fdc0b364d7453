package util

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type m = map[string]any

func newBufferLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	}
	l.Out = buf
	return l, buf
}

func TestContextualError_Log(t *testing.T) {
	tests := []struct {
		name   string
		err    *ContextualError
		expect string
	}{
		{
			name:   "everything",
			err:    NewContextualError("Failed to open controller", m{"controller": "mddi_pmdh"}, errors.New("no such device")),
			expect: "level=error msg=\"Failed to open controller\" controller=mddi_pmdh error=\"no such device\"\n",
		},
		{
			name:   "no fields",
			err:    NewContextualError("Failed to open controller", nil, errors.New("busy")),
			expect: "level=error msg=\"Failed to open controller\" error=busy\n",
		},
		{
			name:   "no error",
			err:    NewContextualError("Invalid link configuration", m{"controller": "mddi_emdh"}, nil),
			expect: "level=error msg=\"Invalid link configuration\" controller=mddi_emdh\n",
		},
		{
			name:   "only context",
			err:    NewContextualError("Invalid link configuration", nil, nil),
			expect: "level=error msg=\"Invalid link configuration\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger()
			tt.err.Log(l)
			assert.Equal(t, tt.expect, buf.String())
		})
	}
}

func TestContextualError_Error(t *testing.T) {
	inner := errors.New("timed out")
	e := NewContextualError("Failed to attach controller", m{"controller": "mddi_pmdh"}, inner)
	assert.Equal(t, "Failed to attach controller (map[controller:mddi_pmdh]): timed out", e.Error())
	assert.ErrorIs(t, e, inner)

	assert.Equal(t, "Failed to attach controller: timed out", NewContextualError("Failed to attach controller", nil, inner).Error())
	assert.Equal(t, "Failed to attach controller", NewContextualError("Failed to attach controller", nil, nil).Error())
	assert.Nil(t, NewContextualError("Failed to attach controller", nil, nil).Unwrap())
}

func TestLogWithContextIfNeeded(t *testing.T) {
	l, buf := newBufferLogger()

	e := NewContextualError("Failed to attach controller", m{"controller": "mddi_pmdh"}, errors.New("timeout"))
	LogWithContextIfNeeded("This should get thrown away", e, l)
	assert.Equal(t, "level=error msg=\"Failed to attach controller\" controller=mddi_pmdh error=timeout\n", buf.String())

	// Found through a wrapping error as well
	buf.Reset()
	LogWithContextIfNeeded("This should get thrown away", fmt.Errorf("start: %w", e), l)
	assert.Equal(t, "level=error msg=\"Failed to attach controller\" controller=mddi_pmdh error=timeout\n", buf.String())

	buf.Reset()
	LogWithContextIfNeeded("Fallback context", errors.New("plain error"), l)
	assert.Equal(t, "level=error msg=\"Fallback context\" error=\"plain error\"\n", buf.String())
}

func TestContextualizeIfNeeded(t *testing.T) {
	e := NewContextualError("Failed to open controller", m{"controller": "mddi_pmdh"}, errors.New("error"))
	assert.Same(t, e, ContextualizeIfNeeded("should be ignored", e))

	wrapped := errors.Join(errors.New("other"), e)
	assert.Equal(t, wrapped, ContextualizeIfNeeded("should be ignored", wrapped))

	err := errors.New("this is a normal error")
	cErr := ContextualizeIfNeeded("Fallback context", err)
	var ce *ContextualError
	if assert.ErrorAs(t, cErr, &ce) {
		assert.Equal(t, err, ce.RealError)
		assert.Equal(t, "Fallback context", ce.Context)
	}
}
