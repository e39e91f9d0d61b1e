package protocol

import "time"

// CloneCompleted is broadcast when a cloned clip has been written.
type CloneCompleted struct {
	JobID      string    `json:"job_id"`
	NodeID     string    `json:"node_id"`
	Language   string    `json:"language"`
	AudioURL   string    `json:"audio_url"`
	FileName   string    `json:"file_name"`
	DurationMS int64     `json:"duration_ms"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// CloneFailed is broadcast when a clone request could not be served.
type CloneFailed struct {
	JobID     string    `json:"job_id"`
	NodeID    string    `json:"node_id"`
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Capability is one feature advertised by a node.
type Capability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NodeAnnounce advertises a node and its capabilities.
type NodeAnnounce struct {
	NodeID       string       `json:"node_id"`
	Role         string       `json:"role"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NodeHeartbeat keeps a node marked healthy.
type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectCloneCompleted   = "clone.completed"
	SubjectCloneFailed      = "clone.failed"
	SubjectNodeAnnounce     = "ctrl.node.announce"
	SubjectNodeHeartbeatAll = "ctrl.node.heartbeat.*"
)

// SubjectNodeHeartbeat is the heartbeat subject for nodeID.
func SubjectNodeHeartbeat(nodeID string) string {
	return "ctrl.node.heartbeat." + nodeID
}
