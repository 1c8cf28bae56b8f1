package call

import (
	"sync"
	"time"

	"github.com/dkeye/Call/internal/domain"
)

// Registry tracks the remote humans considered "in" the call.
// Pure in-memory bookkeeping; the controller is the only writer.
type Registry struct {
	mu      sync.RWMutex
	order   []domain.UserID
	members map[domain.UserID]domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[domain.UserID]domain.Participant)}
}

// Init seeds the roster from the call target: the single peer for a
// direct call, the known channel members for a channel call. The local
// user must already be filtered out by the caller.
func (r *Registry) Init(target domain.CallTarget, self domain.UserID) {
	r.Clear()
	switch target.Mode {
	case domain.ModeDirect:
		r.Add(domain.Participant{ID: target.Peer, JoinedAt: time.Now()})
	case domain.ModeChannel:
		for _, id := range target.Roster {
			if id == self {
				continue
			}
			r.Add(domain.Participant{ID: id, JoinedAt: time.Now()})
		}
	}
}

// Add is idempotent; re-adding keeps the original position and join time.
func (r *Registry) Add(p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[p.ID]; ok {
		return
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	r.order = append(r.order, p.ID)
	r.members[p.ID] = p
}

func (r *Registry) Remove(id domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Contains(id domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Roster returns participants in arrival order.
func (r *Registry) Roster() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.members = make(map[domain.UserID]domain.Participant)
}
