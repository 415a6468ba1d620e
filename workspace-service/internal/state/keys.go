package state

// Store keys of the four persisted room values.
const (
	KeyPinned    = "pinned"
	KeyHistory   = "history"
	KeyArtifacts = "artifacts"
	KeySettings  = "settings"
)

// Keys lists every persisted key in hydration order.
var Keys = []string{KeyPinned, KeyHistory, KeyArtifacts, KeySettings}
