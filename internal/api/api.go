// Package api holds the request/response types shared between the signing
// service and the webhook bridge.
package api

// RevokeRequest asks the signing service to revoke by serial or by subject.
// SerialHex or Subject must be set; when both are set, SerialHex is used.
type RevokeRequest struct {
	SerialHex *string `json:"serial_hex"`
	Subject   *string `json:"subject"`
	Reason    *string `json:"reason"`
}

// Health is the health endpoint body
type Health struct {
	Status string `json:"status"`
}

// HealthOK is the healthy response
func HealthOK() Health {
	return Health{Status: "OK"}
}
