// Package session holds the client's authentication state and its durable
// record. All mutation goes through explicit transitions; readers always
// observe a fully-applied state.
package session

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/storage"
)

// Listener receives session events after each state transition.
type Listener func(domain.SessionEvent)

// Store owns the domain.Session and the persisted record backing it.
type Store struct {
	mu        sync.Mutex
	session   domain.Session
	storage   domain.Storage
	listeners []Listener
}

// NewStore creates an empty session store over the given persistence.
func NewStore(store domain.Storage) *Store {
	return &Store{storage: store}
}

// Subscribe registers a listener notified after every transition.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySession(s.session)
}

// Token returns the current bearer token, empty when anonymous.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Token
}

// ApplyLoginSuccess installs the authenticated identity.
func (s *Store) ApplyLoginSuccess(user *domain.User, token string) {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		sess.Token = token
		sess.User = user
		sess.Loading = false
		sess.Error = ""
		sess.OTPStage = false
		sess.PendingEmail = ""
		return domain.NewSessionEvent(domain.LoginCompletedEvent).WithEmail(user.Email)
	})
}

// ApplyRehydrated installs an identity recovered from durable storage.
func (s *Store) ApplyRehydrated(user *domain.User, token string) {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		sess.Token = token
		sess.User = user
		sess.Loading = false
		sess.Error = ""
		sess.OTPStage = false
		sess.PendingEmail = ""
		return domain.NewSessionEvent(domain.SessionRehydratedEvent).WithEmail(user.Email)
	})
}

// ApplyRegistrationSuccess ends a registration flow. The session stays
// unauthenticated: completing registration requires a fresh login.
func (s *Store) ApplyRegistrationSuccess() {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		email := sess.PendingEmail
		sess.Token = ""
		sess.User = nil
		sess.Loading = false
		sess.Error = ""
		sess.OTPStage = false
		sess.PendingEmail = ""
		return domain.NewSessionEvent(domain.RegistrationDoneEvent).WithEmail(email)
	})
}

// ApplyFailure records a failed operation without disturbing the rest of
// the state.
func (s *Store) ApplyFailure(message string) {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		sess.Loading = false
		sess.Error = message
		return domain.NewSessionEvent(domain.OperationFailedEvent).WithError(message)
	})
}

// ApplyOTPChallenge moves the session into the awaiting-OTP stage for the
// given email.
func (s *Store) ApplyOTPChallenge(email string) {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		sess.Token = ""
		sess.User = nil
		sess.Loading = false
		sess.Error = ""
		sess.OTPStage = true
		sess.PendingEmail = email
		return domain.NewSessionEvent(domain.OTPChallengedEvent).WithEmail(email)
	})
}

// ApplyLogout resets the session to empty.
func (s *Store) ApplyLogout() {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		*sess = domain.Session{}
		return domain.NewSessionEvent(domain.UserLogoutEvent)
	})
}

// SetUser refreshes the profile snapshot of an authenticated session.
func (s *Store) SetUser(user *domain.User) {
	s.transition(func(sess *domain.Session) *domain.SessionEvent {
		sess.User = user
		sess.Loading = false
		sess.Error = ""
		return domain.NewSessionEvent(domain.ProfileRefreshedEvent).WithEmail(user.Email)
	})
}

// AdoptToken installs a bearer token ahead of the profile fetch that will
// establish or restore the session. No event is published; the session is
// not yet authenticated.
func (s *Store) AdoptToken(token string) {
	s.mu.Lock()
	s.session.Token = token
	s.mu.Unlock()
}

// SetLoading flips the in-flight flag.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.session.Loading = loading
	s.mu.Unlock()
}

// ClearError discards the last operation's failure message.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.session.Error = ""
	s.mu.Unlock()
}

// TryBeginOperation marks an operation in flight. It reports false when
// one is already running; callers must reject the duplicate submission.
func (s *Store) TryBeginOperation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.Loading {
		return false
	}
	s.session.Loading = true
	return true
}

// SaveRecord writes the token and user snapshot to durable storage,
// overwriting any previous record.
func (s *Store) SaveRecord(user *domain.User, token string) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.storage.Set(storage.TokenKey, token); err != nil {
		return err
	}
	return s.storage.Set(storage.UserKey, string(encoded))
}

// LoadRecord reads the persisted record. Returns domain.ErrKeyNotFound
// when no record exists and domain.ErrRecordCorrupt when it cannot be
// trusted.
func (s *Store) LoadRecord() (*domain.User, string, error) {
	token, err := s.storage.Get(storage.TokenKey)
	if err != nil {
		return nil, "", err
	}
	raw, err := s.storage.Get(storage.UserKey)
	if err != nil {
		return nil, "", err
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, "", domain.ErrRecordCorrupt
	}
	if !user.Valid() || token == "" {
		return nil, "", domain.ErrRecordCorrupt
	}
	return &user, token, nil
}

// ClearRecord removes both durable keys. Both are always cleared together.
func (s *Store) ClearRecord() error {
	err1 := s.storage.Remove(storage.TokenKey)
	err2 := s.storage.Remove(storage.UserKey)
	return errors.Join(err1, err2)
}

// transition applies fn under the lock and notifies listeners outside it.
func (s *Store) transition(fn func(*domain.Session) *domain.SessionEvent) {
	s.mu.Lock()
	event := fn(&s.session)
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if event == nil {
		return
	}
	for _, fn := range listeners {
		fn(*event)
	}
}

func copySession(sess domain.Session) domain.Session {
	if sess.User != nil {
		user := *sess.User
		sess.User = &user
	}
	return sess
}
