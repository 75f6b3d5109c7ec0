package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssociationInput_UnmarshalCoordinates(t *testing.T) {
	var in AssociationInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"device_id": "biodata_1",
		"plant_name": "Roble",
		"gps_latitude": " 40.4168 ",
		"gps_longitude": -3.7038,
		"gps_altitude": null,
		"start_time": "2024-01-15T08:00:00Z"
	}`), &in))

	assert.Equal(t, "biodata_1", in.DeviceID)
	require.NotNil(t, in.GPSLatitude)
	assert.Equal(t, 40.4168, *in.GPSLatitude)
	require.NotNil(t, in.GPSLongitude)
	assert.Equal(t, -3.7038, *in.GPSLongitude)
	assert.Nil(t, in.GPSAltitude)
	require.NotNil(t, in.StartTime)

	err := json.Unmarshal([]byte(`{"gps_latitude":"north"}`), &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gps_latitude")

	assert.Error(t, json.Unmarshal([]byte(`{"gps_altitude":true}`), &in))
}
