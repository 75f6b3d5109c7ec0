package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/nodeconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInitNode_ThenCheckReportsPlaceholders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "secrets.yaml")

	var out, errOut bytes.Buffer
	require.Equal(t, 0, runInitNode(path, &out, &errOut))
	assert.Contains(t, out.String(), path)

	// 已存在时不覆盖
	errOut.Reset()
	assert.Equal(t, 1, runInitNode(path, &out, &errOut))
	assert.Contains(t, errOut.String(), "already exists")

	out.Reset()
	assert.Equal(t, 1, runCheck(path, &out))
	report := out.String()
	assert.Contains(t, report, "WIFI_PASSWORD")
	assert.Contains(t, report, "MQTT_PASSWORD")
	assert.Greater(t, strings.Count(report, "FAIL"), 1, "every problem should be listed")
}

func TestRunCheck_Valid(t *testing.T) {
	rec := nodeconfig.Defaults()
	rec.WiFiSSID = "molino-lab"
	rec.WiFiPassword = "wifi-pass"
	rec.MQTTBroker = "broker.example.org"
	rec.MQTTUsername = "node"
	rec.MQTTPassword = "mqtt-pass"
	rec.SensorID = "biodata_1"
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, rec.Save(path))

	var out bytes.Buffer
	assert.Equal(t, 0, runCheck(path, &out))
	assert.Contains(t, out.String(), "OK")
	assert.Contains(t, out.String(), "biodata_1")
}

func TestRunCheck_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, runCheck(filepath.Join(t.TempDir(), "nope.yaml"), &out))
	assert.Contains(t, out.String(), "FAIL")
}

func TestRunCheck_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("WIFI_SSID: [unclosed\n"), 0600))

	var out bytes.Buffer
	assert.Equal(t, 1, runCheck(path, &out))
}

func TestRunHashPassword(t *testing.T) {
	var out, errOut bytes.Buffer
	require.Equal(t, 0, runHashPassword(strings.NewReader("s3cret\n"), &out, &errOut))
	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.Compare("s3cret", hash))

	out.Reset()
	assert.Equal(t, 1, runHashPassword(strings.NewReader("\n"), &out, &errOut))
	assert.Empty(t, out.String())
}
