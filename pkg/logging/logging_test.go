package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer

	log, err := New(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log, err = New(&buf, "debug")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	_, err = New(&buf, "loud")
	require.Error(t, err)
}

func TestNoColorsOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := Must(&buf, "info")

	log.WithField("worker", 3).Info("spawned")
	out := buf.String()
	assert.Contains(t, out, "level=info")
	assert.Contains(t, out, "worker=3")
	assert.NotContains(t, out, "\x1b[")
}
