package handlers

import "errors"

var errNoDatabase = errors.New("database not initialized")

const (
	errDeviceIDRequiredMessage    = "device_id is required"
	errInvalidRequestBodyPrefix   = "invalid request body: "
	errInvalidEndTimeMessage      = "end_time must be an RFC3339 timestamp"
	errInvalidAtMessage           = "at must be an RFC3339 timestamp"
	errCredentialsRequiredMessage = "username and password are required"
	errInvalidCredentialsMessage  = "invalid username or password"
	errLoginDisabledMessage       = "login is disabled"
	errTooManyAttemptsMessage     = "too many failed login attempts, try again later"
	errBridgeDisabledMessage      = "bridge is disabled"
	errNodeRecordMissingMessage   = "node record not loaded"

	msgAssociationCreated = "association created"
	msgAssociationClosed  = "association closed"
)
