package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsJSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	out, err := captureOutput(t, runBackends)
	require.NoError(t, err)

	var infos []backendInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos), "output should be valid JSON")
	require.Len(t, infos, 5)

	byName := map[string]backendInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.True(t, byName["dma-heap"].Default, "dma-heap is the default backend")
	assert.True(t, byName["memfd"].Available)
	assert.Equal(t, "/dev/ion", byName["ion"].Node)
}

func TestBackendsText(t *testing.T) {
	resetFlags(t)
	backendName = "memfd"

	out, err := captureOutput(t, runBackends)
	require.NoError(t, err)
	assert.Contains(t, out, "* memfd")
	assert.Contains(t, out, "/dev/pxp_device")
}

func TestInitLoggingRejectsBadLevel(t *testing.T) {
	resetFlags(t)
	logLevel = "chatty"
	require.Error(t, initLogging())
}
