package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON endpoints.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// turnTimeout cancels a streamed turn that runs longer. Zero disables it.
var turnTimeout time.Duration

// SetTurnTimeout sets the wall-clock limit for a streamed turn (0 disables).
func SetTurnTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	turnTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server. Empty method
// and header lists fall back to the routes' needs.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

func corsMethods() []string {
	if len(corsAllowedMethods) > 0 {
		return corsAllowedMethods
	}
	return []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
}

func corsHeaders() []string {
	if len(corsAllowedHeaders) > 0 {
		return corsAllowedHeaders
	}
	return []string{"Content-Type", "X-Log-Level", "X-Request-Id"}
}
