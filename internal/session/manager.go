// Package session keeps the registry of live tutoring sessions. Each entry
// owns one tutor.Session; ending or expiring an entry drops its history.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/tutor/internal/mode"
	"github.com/ent0n29/tutor/internal/tutor"
	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrEnded    = errors.New("session ended")
)

// Factory builds the tutor.Session backing a new registry entry.
type Factory func(id string, m mode.Mode) *tutor.Session

type entry struct {
	userID     string
	status     Status
	tutor      *tutor.Session
	lastMode   mode.Mode
	submits    int
	startedAt  time.Time
	lastActive time.Time
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	factory           Factory
	onExpire          func(Info)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration, factory Factory) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 15 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		factory:           factory,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

// SetExpireHook registers a callback run for every session the janitor ends.
func (m *Manager) SetExpireHook(hook func(Info)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create registers a new session in mode md. A previous active session of
// the same user stays registered but is no longer indexed by user.
func (m *Manager) Create(userID string, md mode.Mode) Info {
	id := uuid.NewString()
	now := m.now()
	e := &entry{
		userID:     userID,
		status:     StatusActive,
		tutor:      m.factory(id, md),
		lastMode:   md,
		startedAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = e
	if userID != "" {
		m.sessionByUser[userID] = id
	}
	return e.info(id)
}

func (m *Manager) Get(sessionID string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, ErrNotFound
	}
	return e.info(sessionID), nil
}

// ByUser returns the latest active session of userID.
func (m *Manager) ByUser(userID string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.sessionByUser[userID]
	if !ok {
		return Info{}, ErrNotFound
	}
	return m.sessions[id].info(id), nil
}

// Tutor returns the tutor.Session of an active entry and refreshes its
// activity time.
func (m *Manager) Tutor(sessionID string) (*tutor.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if e.status != StatusActive {
		return nil, ErrEnded
	}
	e.lastActive = m.now()
	return e.tutor, nil
}

// MarkSubmitted counts a finished submit against the session.
func (m *Manager) MarkSubmitted(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sessionID]; ok {
		e.submits++
		e.lastActive = m.now()
	}
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.lastActive = m.now()
	return nil
}

// End closes a session and discards its history. Ending twice is allowed.
func (m *Manager) End(sessionID string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, ErrNotFound
	}
	m.endLocked(sessionID, e)
	return e.info(sessionID), nil
}

func (m *Manager) endLocked(id string, e *entry) {
	if e.status == StatusEnded {
		return
	}
	e.status = StatusEnded
	e.lastActive = m.now()
	if e.tutor != nil {
		e.lastMode = e.tutor.Mode()
		e.tutor.Reset()
		e.tutor = nil
	}
	if e.userID != "" && m.sessionByUser[e.userID] == id {
		delete(m.sessionByUser, e.userID)
	}
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.status == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends idle sessions and forgets sessions that have been
// ended for longer than the inactivity timeout.
func (m *Manager) expireInactive() {
	now := m.now()
	var expired []Info

	m.mu.Lock()
	for id, e := range m.sessions {
		idle := now.Sub(e.lastActive)
		if e.status == StatusEnded {
			if idle >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if idle < m.inactivityTimeout {
			continue
		}
		m.endLocked(id, e)
		expired = append(expired, e.info(id))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, info := range expired {
			hook(info)
		}
	}
}

func (e *entry) info(id string) Info {
	info := Info{
		ID:             id,
		UserID:         e.userID,
		Status:         e.status,
		Mode:           e.lastMode,
		SubmitCount:    e.submits,
		StartedAt:      e.startedAt,
		LastActivityAt: e.lastActive,
	}
	if e.tutor != nil {
		info.Mode = e.tutor.Mode()
		info.HistoryTurns = len(e.tutor.History())
	}
	return info
}
