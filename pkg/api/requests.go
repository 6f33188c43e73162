package api

// runJobRequest is the body of POST /api/jobs/run.
type runJobRequest struct {
	Module string `json:"module"`
	Job    string `json:"job"`
}

// putSettingRequest is the body of PUT /api/settings/:module/:key.
// Value null clears the override back to the manifest default. IsSecret
// defaults to the manifest declaration when omitted.
type putSettingRequest struct {
	Value    *string `json:"value"`
	IsSecret *bool   `json:"is_secret"`
}

// putSettingsBulkItem is one element of the PUT /api/settings/:module body.
type putSettingsBulkItem struct {
	Key      string  `json:"key"`
	Value    *string `json:"value"`
	IsSecret *bool   `json:"is_secret"`
}
