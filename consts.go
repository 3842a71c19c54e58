package mimic

const (
	// ControlPrefix is the URL path prefix reserved for the host's control app
	ControlPrefix = "/_ah/mimic"

	// Environment keys for the App Engine style request headers that only
	// appear on offline (task queue or cron) requests.
	HeaderQueueName        = "HTTP_X_APPENGINE_QUEUENAME"
	HeaderCron             = "HTTP_X_APPENGINE_CRON"
	HeaderCurrentNamespace = "HTTP_X_APPENGINE_CURRENT_NAMESPACE"

	// MaxFileSize caps a single file read from a remote backing store
	MaxFileSize = 32 << 20

	// Cache key prefixes
	CacheManifestPrefix = "manifest:"
	CacheFilePrefix     = "file:"
	CacheGenPrefix      = "gen:"
)

// IsOfflineRequest reports whether the CGI environment belongs to a task
// queue or cron request.
func IsOfflineRequest(env map[string]string) bool {
	if _, ok := env[HeaderQueueName]; ok {
		return true
	}
	_, ok := env[HeaderCron]
	return ok
}
