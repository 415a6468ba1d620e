package state

import (
	"encoding/json"

	"github.com/weiawesome/wes-io-live/workspace-service/internal/domain"
)

type storedPinned struct {
	Memories []string          `json:"memories"`
	Todos    []json.RawMessage `json:"todos"`
}

// decodePinned accepts both the current todo shape and the legacy one where
// todos were plain strings. migrated reports whether any legacy todo was seen.
func decodePinned(raw []byte) (domain.PinnedMemory, bool, error) {
	var stored storedPinned
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.PinnedMemory{}, false, err
	}

	out := domain.PinnedMemory{
		Memories: stored.Memories,
		Todos:    make([]domain.Todo, 0, len(stored.Todos)),
	}
	if out.Memories == nil {
		out.Memories = []string{}
	}

	migrated := false
	for _, item := range stored.Todos {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			out.Todos = append(out.Todos, domain.Todo{Text: text})
			migrated = true
			continue
		}
		var todo domain.Todo
		if err := json.Unmarshal(item, &todo); err != nil {
			return domain.PinnedMemory{}, false, err
		}
		out.Todos = append(out.Todos, todo)
	}
	return out, migrated, nil
}
