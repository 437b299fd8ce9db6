package api

// LaunchRequest is the JSON body for POST /launch.
type LaunchRequest struct {
	// Profile is a profile name or index. Empty selects the current profile.
	Profile string `json:"profile"`
}

// LaunchResponse is returned when a launch has been accepted.
type LaunchResponse struct {
	LaunchID string `json:"launch_id"`
	Profile  string `json:"profile"`
	Status   string `json:"status"`
}

// ProfileSummary is one entry of GET /profiles.
type ProfileSummary struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Current     bool   `json:"current"`
	HLExe       string `json:"hl_exe"`
	EnableBXT   bool   `json:"enable_bxt"`
	EnableBXTRS bool   `json:"enable_bxt_rs"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	HistoryEnabled bool   `json:"history_enabled"`
}
