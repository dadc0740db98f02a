package stubserver

import (
	"context"
	"errors"
	"sync"

	"github.com/tourverse/traveler/domain"
)

// Repository errors
var (
	ErrTravelerNotFound = errors.New("traveler not found")
	ErrEmailTaken       = errors.New("email already registered")
)

type travelerRecord struct {
	user         domain.User
	passwordHash string
}

// MemoryTravelerRepo implements domain.TravelerRepository in process
// memory. The stub keeps no relational storage on purpose.
type MemoryTravelerRepo struct {
	mu      sync.RWMutex
	byID    map[uint]*travelerRecord
	byEmail map[string]uint
	nextID  uint
}

// NewMemoryTravelerRepo creates an empty repository.
func NewMemoryTravelerRepo() *MemoryTravelerRepo {
	return &MemoryTravelerRepo{
		byID:    make(map[uint]*travelerRecord),
		byEmail: make(map[string]uint),
		nextID:  1,
	}
}

// Create registers a new traveler, assigning its ID.
func (r *MemoryTravelerRepo) Create(ctx context.Context, user *domain.User, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	user.ID = r.nextID
	r.nextID++
	r.byID[user.ID] = &travelerRecord{user: *user, passwordHash: passwordHash}
	r.byEmail[user.Email] = user.ID
	return nil
}

// FindByEmail returns the traveler registered under email.
func (r *MemoryTravelerRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, ErrTravelerNotFound
	}
	user := r.byID[id].user
	return &user, nil
}

// FindByID returns the traveler with the given ID.
func (r *MemoryTravelerRepo) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, ErrTravelerNotFound
	}
	user := rec.user
	return &user, nil
}

// Update replaces the traveler's mutable fields.
func (r *MemoryTravelerRepo) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[user.ID]
	if !ok {
		return ErrTravelerNotFound
	}
	rec.user = *user
	return nil
}

// Delete removes the traveler.
func (r *MemoryTravelerRepo) Delete(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return ErrTravelerNotFound
	}
	delete(r.byEmail, rec.user.Email)
	delete(r.byID, id)
	return nil
}

// PasswordHash returns the stored bcrypt hash.
func (r *MemoryTravelerRepo) PasswordHash(ctx context.Context, id uint) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return "", ErrTravelerNotFound
	}
	return rec.passwordHash, nil
}

// SetPasswordHash replaces the stored bcrypt hash.
func (r *MemoryTravelerRepo) SetPasswordHash(ctx context.Context, id uint, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return ErrTravelerNotFound
	}
	rec.passwordHash = hash
	return nil
}

var _ domain.TravelerRepository = (*MemoryTravelerRepo)(nil)
