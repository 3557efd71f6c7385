package collab

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

type PresenceManager struct {
	mu        sync.RWMutex
	presences map[string]*PresencePayload // userID -> presence
}

func NewPresenceManager() *PresenceManager {
	return &PresenceManager{
		presences: make(map[string]*PresencePayload),
	}
}

func (pm *PresenceManager) Update(userID string, p *PresencePayload) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.presences[userID] = p
}

func (pm *PresenceManager) Remove(userID string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.presences, userID)
}

func (pm *PresenceManager) GetAll() map[string]*PresencePayload {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	result := make(map[string]*PresencePayload, len(pm.presences))
	for k, v := range pm.presences {
		result[k] = v
	}
	return result
}

// Editing returns, sorted, the users other than except with an open gesture
// on maskID.
func (pm *PresenceManager) Editing(maskID, except string) []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var users []string
	for userID, p := range pm.presences {
		if userID != except && p.ActiveMask == maskID && p.Gesture != "" {
			users = append(users, userID)
		}
	}
	slices.Sort(users)
	return users
}

func (pm *PresenceManager) StateMessage() (*Message, error) {
	payload, err := json.Marshal(PresenceStatePayload{Presences: pm.GetAll()})
	if err != nil {
		return nil, fmt.Errorf("marshal presence state: %w", err)
	}
	return &Message{
		Type:    TypePresenceState,
		Payload: payload,
	}, nil
}
