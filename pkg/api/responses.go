package api

// StatusResponse is returned by GET /api/ai/status.
type StatusResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider"`
}

// ErrorResponse is the stable error shape returned for every failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the public health check.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Time   string `json:"time"`
}
