package instance

import "os"

// GetID names the running replica for logs and lock ownership. It prefers
// BLENDPOINT_INSTANCE_ID, then the platform DYNO, then the hostname.
func GetID() string {
	for _, key := range []string{"BLENDPOINT_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
