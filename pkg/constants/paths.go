package constants

// Пути health, ready и корни REST API (остальное — в router).
const (
	PathHealth       = "/health"
	PathReady        = "/ready"
	PathProjects     = "/projects"
	PathSessions     = "/sessions"
	PathJoinRequests = "/join-requests"
)
