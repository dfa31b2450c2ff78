package models

// Viewer is the identity of the person looking at a chat. It is resolved once per
// session from the authentication collaborator. An empty ID is an anonymous guest.
type Viewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Privileged  bool   `json:"privileged"`
}

// Anonymous reports whether the viewer has no identity
func (v Viewer) Anonymous() bool {
	return v.ID == ""
}

// HealthCheckResponse is returned by the health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
