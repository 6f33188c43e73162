package api

// HealthCheck is one component's health in the healthz response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// runJobResponse is the body of a successful POST /api/jobs/run.
type runJobResponse struct {
	JobID string `json:"jobId"`
}

// settingView is one entry of the merged settings listing. Source is
// "override" when a stored row backs the value and "default" when the
// manifest default applies.
type settingView struct {
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	IsSecret bool    `json:"is_secret"`
	Source   string  `json:"source"`
}
