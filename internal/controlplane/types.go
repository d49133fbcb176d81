package controlplane

// DeclaredState is the consolidated snapshot from GET
// /api/v1/device/state/ (spec §6).
type DeclaredState struct {
	Cameras    []DeclaredCamera    `json:"cameras"`
	Broadcasts []DeclaredBroadcast `json:"broadcasts"`
	Device     map[string]any      `json:"device"`
	Complex    map[string]any      `json:"complex"`
}

type DeclaredCamera struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	SourceURL       string `json:"source_url"`
	HasStreamConfig bool   `json:"has_stream_config"`
	PublicBaseURL   string `json:"public_base_url"`
	CourtID         string `json:"court_id"`
	Position        string `json:"position"`
}

type DeclaredBroadcast struct {
	ID        string `json:"id"`
	CameraID  string `json:"camera_id"`
	RemoteURL string `json:"remote_url"`
	StreamKey string `json:"stream_key"`
}

type connectionReport struct {
	IsConnected bool   `json:"is_connected"`
	Error       string `json:"error,omitempty"`
}

type refreshURLRequest struct {
	LocalHLSURL string `json:"local_hls_url"`
}

type broadcastStatusRequest struct {
	Status       string `json:"status"`
	FFmpegPID    int    `json:"ffmpeg_pid,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type successResponse struct {
	Success bool `json:"success"`
}
