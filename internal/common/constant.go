// Package common contains shared constants and sentinel errors used across
// PointShare components.
package common

// AccessTokenHeaderName is the gRPC metadata key (and websocket query
// parameter) used to carry the access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// Object storage namespaces.
const (
	StorageNamespaceImages = "images"
	StorageNamespaceUsers  = "users"
)

// NotificationChannel is the per-account destination for pushed notifications.
const NotificationChannel = "/queue/notification"
