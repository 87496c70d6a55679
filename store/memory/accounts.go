package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	goEnroll "github.com/MrEthical07/goEnroll"
	"github.com/MrEthical07/goEnroll/internal/flows"
)

// AccountStore keeps accounts in maps indexed by id, external ref,
// username and email.
type AccountStore struct {
	mu         sync.Mutex
	byID       map[string]*goEnroll.Account
	byRef      map[string]string
	byUsername map[string]string
	byEmail    map[string]string
}

// NewAccountStore returns an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:       make(map[string]*goEnroll.Account),
		byRef:      make(map[string]string),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// BeginScan implements goEnroll.AccountStore.
func (s *AccountStore) BeginScan(ctx context.Context, identity goEnroll.Identity, now time.Time) (goEnroll.ScanOutcome, *goEnroll.Account, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.resolveLocked(identity)
	state := flows.AccountState{}
	if a != nil {
		state = flows.AccountState{Exists: true, IsRegistered: a.IsRegistered, IsLoggedOut: a.IsLoggedOut}
	}

	outcome := flows.DecideScan(state)
	switch outcome {
	case flows.ScanFresh:
		return outcome, nil, nil
	case flows.ScanClaimed:
		return outcome, copyAccount(a), nil
	case flows.ScanReset:
		resetAccount(a, now)
	}
	if a.ExternalRef != identity.Ref {
		s.rebindRefLocked(a, identity.Ref)
	}
	return outcome, copyAccount(a), nil
}

// CompleteRegistration implements goEnroll.AccountStore.
func (s *AccountStore) CompleteRegistration(ctx context.Context, identity goEnroll.Identity, passwordHash string, now time.Time) (*goEnroll.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(identity.Username)
	email := goEnroll.NormalizeEmail(identity.Email)

	a := s.resolveLocked(identity)
	if a != nil && a.Claimed() {
		return nil, goEnroll.ErrAlreadyRegistered
	}
	if id, ok := s.byUsername[username]; ok && (a == nil || id != a.ID) {
		return nil, fmt.Errorf("memory: username %q belongs to another account", identity.Username)
	}
	if id, ok := s.byEmail[email]; ok && (a == nil || id != a.ID) {
		return nil, fmt.Errorf("memory: email %q belongs to another account", email)
	}

	if a == nil {
		a = &goEnroll.Account{
			ID:        uuid.NewString(),
			CreatedAt: now,
		}
		s.byID[a.ID] = a
	} else {
		delete(s.byUsername, strings.ToLower(a.Username))
		delete(s.byEmail, goEnroll.NormalizeEmail(a.Email))
	}
	s.rebindRefLocked(a, identity.Ref)

	a.Username = identity.Username
	a.Email = email
	a.Name = identity.Name
	a.Phone = identity.Phone
	a.PasswordHash = passwordHash
	a.EmailVerified = true
	a.PasswordVerified = true
	a.IsRegistered = true
	a.IsActive = true
	a.IsLoggedOut = false
	a.RequiresReauth = false
	a.LastPasswordCheck = timePtr(now)
	a.UpdatedAt = now

	s.byUsername[username] = a.ID
	s.byEmail[email] = a.ID
	return copyAccount(a), nil
}

// GetByID implements goEnroll.AccountStore.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*goEnroll.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

// GetByUsername implements goEnroll.AccountStore. Usernames match case
// insensitively.
func (s *AccountStore) GetByUsername(ctx context.Context, username string) (*goEnroll.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(s.byUsername[strings.ToLower(strings.TrimSpace(username))])
}

// GetByEmail implements goEnroll.AccountStore.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*goEnroll.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(s.byEmail[goEnroll.NormalizeEmail(email)])
}

// RecordLogin implements goEnroll.AccountStore.
func (s *AccountStore) RecordLogin(ctx context.Context, id string, at time.Time, passwordChecked bool) error {
	return s.update(id, func(a *goEnroll.Account) {
		a.LastLoginAt = timePtr(at)
		a.IsLoggedOut = false
		a.RequiresReauth = false
		a.IsActive = true
		if passwordChecked {
			a.LastPasswordCheck = timePtr(at)
		}
		a.UpdatedAt = at
	})
}

// SetRequiresReauth implements goEnroll.AccountStore.
func (s *AccountStore) SetRequiresReauth(ctx context.Context, id string, required bool) error {
	return s.update(id, func(a *goEnroll.Account) {
		a.RequiresReauth = required
	})
}

// MarkLoggedOut implements goEnroll.AccountStore.
func (s *AccountStore) MarkLoggedOut(ctx context.Context, id string, at time.Time) error {
	return s.update(id, func(a *goEnroll.Account) {
		a.IsLoggedOut = true
		a.LastLogoutAt = timePtr(at)
		a.UpdatedAt = at
	})
}

// Repair implements goEnroll.AccountStore.
func (s *AccountStore) Repair(ctx context.Context, id string) error {
	return s.update(id, func(a *goEnroll.Account) {
		a.IsActive = true
		a.IsRegistered = true
	})
}

// SetActive toggles the active flag. It stands in for the administrative
// deactivation the upstream system performs.
func (s *AccountStore) SetActive(id string, active bool) error {
	return s.update(id, func(a *goEnroll.Account) {
		a.IsActive = active
	})
}

func (s *AccountStore) update(id string, fn func(*goEnroll.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return goEnroll.ErrAccountNotFound
	}
	fn(a)
	return nil
}

func (s *AccountStore) getLocked(id string) (*goEnroll.Account, error) {
	a, ok := s.byID[id]
	if !ok {
		return nil, goEnroll.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

// resolveLocked finds the account for identity by canonical ref, then by
// email for accounts created before the ref was known in canonical form.
func (s *AccountStore) resolveLocked(identity goEnroll.Identity) *goEnroll.Account {
	if id, ok := s.byRef[identity.Ref]; ok {
		return s.byID[id]
	}
	if id, ok := s.byEmail[goEnroll.NormalizeEmail(identity.Email)]; ok {
		return s.byID[id]
	}
	return nil
}

func (s *AccountStore) rebindRefLocked(a *goEnroll.Account, ref string) {
	if a.ExternalRef != "" {
		delete(s.byRef, a.ExternalRef)
	}
	a.ExternalRef = ref
	s.byRef[ref] = a.ID
}

func resetAccount(a *goEnroll.Account, now time.Time) {
	a.PasswordHash = ""
	a.EmailVerified = false
	a.PasswordVerified = false
	a.IsRegistered = false
	a.IsLoggedOut = false
	a.RequiresReauth = false
	a.LastLoginAt = nil
	a.LastLogoutAt = nil
	a.LastPasswordCheck = nil
	a.UpdatedAt = now
}

func copyAccount(a *goEnroll.Account) *goEnroll.Account {
	c := *a
	c.LastLoginAt = copyTime(a.LastLoginAt)
	c.LastLogoutAt = copyTime(a.LastLogoutAt)
	c.LastPasswordCheck = copyTime(a.LastPasswordCheck)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
