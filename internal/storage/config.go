package storage

import "strings"

// MinIOConfig holds MinIO connection configuration. PublicURL is the base
// under which uploaded objects are reachable; it defaults to the files route
// of this service.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

// DefaultPublicURL serves objects back through the service itself.
const DefaultPublicURL = "/api/shipments/files"

func objectURL(base, key string) string {
	if base == "" {
		base = DefaultPublicURL
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
