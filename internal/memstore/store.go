// Package memstore is an in-memory identity.IdentityStore used for
// ephemeral runs and tests. Transactions work on a snapshot that replaces
// the live state on commit.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-identity"
)

type state struct {
	users    map[uuid.UUID]*identity.User
	accounts map[uuid.UUID]*identity.LinkedAccount
	secrets  map[string]*identity.APISecret
}

func (s *state) clone() *state {
	c := &state{
		users:    make(map[uuid.UUID]*identity.User, len(s.users)),
		accounts: make(map[uuid.UUID]*identity.LinkedAccount, len(s.accounts)),
		secrets:  make(map[string]*identity.APISecret, len(s.secrets)),
	}
	for k, v := range s.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range s.accounts {
		c.accounts[k] = copyAccount(v)
	}
	for k, v := range s.secrets {
		cp := *v
		c.secrets[k] = &cp
	}
	return c
}

// Store implements identity.IdentityStore.
type Store struct {
	mu   *sync.RWMutex
	txMu *sync.Mutex
	st   *state
	root *Store

	failMu sync.Mutex
	fail   map[string]error
}

var (
	_ identity.IdentityStore = (*Store)(nil)
	_ identity.SecretStore   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		mu:   &sync.RWMutex{},
		txMu: &sync.Mutex{},
		st: &state{
			users:    map[uuid.UUID]*identity.User{},
			accounts: map[uuid.UUID]*identity.LinkedAccount{},
			secrets:  map[string]*identity.APISecret{},
		},
		fail: map[string]error{},
	}
}

// FailNext makes the next call to op return err. op is the method name,
// e.g. "UnlinkAccount". Applies inside transactions too.
func (s *Store) FailNext(op string, err error) {
	r := s.base()
	r.failMu.Lock()
	defer r.failMu.Unlock()
	r.fail[op] = err
}

func (s *Store) base() *Store {
	if s.root != nil {
		return s.root
	}
	return s
}

// writer serializes a write outside a transaction against running
// transactions, so a commit never drops it.
func (s *Store) writer() func() {
	if s.root != nil {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (s *Store) injected(op string) error {
	r := s.base()
	r.failMu.Lock()
	defer r.failMu.Unlock()
	if err, ok := r.fail[op]; ok {
		delete(r.fail, op)
		return err
	}
	return nil
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	if err := s.injected("UsernameExists"); err != nil {
		return false, err
	}
	_, err := s.FindByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if identity.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) FindByUsername(_ context.Context, username string) (*identity.User, error) {
	if err := s.injected("FindByUsername"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	username = strings.ToLower(strings.TrimSpace(username))
	for _, u := range s.st.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, identity.ErrIdentityNotFound
}

func (s *Store) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	if err := s.injected("FindByEmail"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, identity.ErrIdentityNotFound
	}
	for _, u := range s.st.users {
		if u.GetEmail() == email {
			return copyUser(u), nil
		}
	}
	return nil, identity.ErrIdentityNotFound
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	if err := s.injected("FindByID"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.st.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, identity.ErrIdentityNotFound
}

func (s *Store) Create(_ context.Context, user *identity.User) (*identity.User, error) {
	if err := s.injected("Create"); err != nil {
		return nil, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	record := copyUser(user)
	record.Username = strings.ToLower(record.Username)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if _, ok := s.st.users[record.ID]; ok {
		return nil, &identity.UniqueViolationError{Column: "id", Err: fmt.Errorf("duplicate id %s", record.ID)}
	}
	if err := s.checkUnique(record); err != nil {
		return nil, err
	}

	now := time.Now()
	record.CreatedAt, record.UpdatedAt = &now, &now
	s.st.users[record.ID] = record
	return copyUser(record), nil
}

func (s *Store) Update(_ context.Context, user *identity.User) (*identity.User, error) {
	if err := s.injected("Update"); err != nil {
		return nil, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.st.users[user.ID]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}

	record := copyUser(user)
	record.Username = strings.ToLower(record.Username)
	if err := s.checkUnique(record); err != nil {
		return nil, err
	}

	now := time.Now()
	record.CreatedAt, record.UpdatedAt = current.CreatedAt, &now
	s.st.users[record.ID] = record
	return copyUser(record), nil
}

func (s *Store) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	if err := s.injected("SetPasswordHash"); err != nil {
		return err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *Store) TrackLogin(_ context.Context, id uuid.UUID) error {
	if err := s.injected("TrackLogin"); err != nil {
		return err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	now := time.Now()
	u.LoggedInAt = &now
	return nil
}

func (s *Store) checkUnique(record *identity.User) error {
	for id, u := range s.st.users {
		if id == record.ID {
			continue
		}
		if u.Username == record.Username {
			return &identity.UniqueViolationError{Column: "username", Err: fmt.Errorf("duplicate username %q", record.Username)}
		}
		if record.Email != nil && u.GetEmail() == record.GetEmail() {
			return &identity.UniqueViolationError{Column: "email", Err: fmt.Errorf("duplicate email")}
		}
	}
	return nil
}

func (s *Store) LinkAccount(_ context.Context, account *identity.LinkedAccount) (*identity.LinkedAccount, error) {
	if err := s.injected("LinkAccount"); err != nil {
		return nil, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[account.UserID]; !ok {
		return nil, identity.ErrIdentityNotFound
	}

	now := time.Now()
	for _, existing := range s.st.accounts {
		if existing.Provider == account.Provider && existing.ProviderAccountID == account.ProviderAccountID {
			if existing.UserID != account.UserID {
				return nil, &identity.UniqueViolationError{Column: "provider_account_id", Err: fmt.Errorf("provider account already linked")}
			}
			record := copyAccount(account)
			record.ID, record.CreatedAt, record.UpdatedAt = existing.ID, existing.CreatedAt, &now
			s.st.accounts[record.ID] = record
			return copyAccount(record), nil
		}
		if existing.UserID == account.UserID && existing.Provider == account.Provider {
			return nil, &identity.UniqueViolationError{Column: "provider", Err: fmt.Errorf("provider already linked for user")}
		}
	}

	record := copyAccount(account)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt, record.UpdatedAt = &now, &now
	s.st.accounts[record.ID] = record
	return copyAccount(record), nil
}

func (s *Store) UnlinkAccount(_ context.Context, userID uuid.UUID, provider string) (int, error) {
	if err := s.injected("UnlinkAccount"); err != nil {
		return 0, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, a := range s.st.accounts {
		if a.UserID == userID && a.Provider == provider {
			delete(s.st.accounts, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) FindLinkedAccount(_ context.Context, userID uuid.UUID, provider string) (*identity.LinkedAccount, error) {
	if err := s.injected("FindLinkedAccount"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.st.accounts {
		if a.UserID == userID && a.Provider == provider {
			return copyAccount(a), nil
		}
	}
	return nil, identity.ErrLinkedAccountNotFound
}

func (s *Store) FindLinkedAccountByProvider(_ context.Context, provider, providerAccountID string) (*identity.LinkedAccount, error) {
	if err := s.injected("FindLinkedAccountByProvider"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.st.accounts {
		if a.Provider == provider && a.ProviderAccountID == providerAccountID {
			return copyAccount(a), nil
		}
	}
	return nil, identity.ErrLinkedAccountNotFound
}

func (s *Store) ListLinkedAccounts(_ context.Context, userID uuid.UUID) ([]*identity.LinkedAccount, error) {
	if err := s.injected("ListLinkedAccounts"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*identity.LinkedAccount, 0)
	for _, a := range s.st.accounts {
		if a.UserID == userID {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func secretKey(userID uuid.UUID, name string) string {
	return userID.String() + "/" + name
}

func (s *Store) SaveSecret(_ context.Context, record *identity.APISecret) (*identity.APISecret, error) {
	if err := s.injected("SaveSecret"); err != nil {
		return nil, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *record
	key := secretKey(cp.UserID, cp.Name)
	if existing, ok := s.st.secrets[key]; ok {
		cp.ID, cp.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if cp.ID == uuid.Nil {
			cp.ID = uuid.New()
		}
		cp.CreatedAt = &now
	}
	cp.UpdatedAt = &now
	s.st.secrets[key] = &cp

	out := cp
	return &out, nil
}

func (s *Store) FindSecret(_ context.Context, userID uuid.UUID, name string) (*identity.APISecret, error) {
	if err := s.injected("FindSecret"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rec, ok := s.st.secrets[secretKey(userID, name)]; ok {
		out := *rec
		return &out, nil
	}
	return nil, identity.ErrSecretNotFound
}

func (s *Store) DeleteSecret(_ context.Context, userID uuid.UUID, name string) (int, error) {
	if err := s.injected("DeleteSecret"); err != nil {
		return 0, err
	}
	defer s.writer()()
	s.mu.Lock()
	defer s.mu.Unlock()

	key := secretKey(userID, name)
	if _, ok := s.st.secrets[key]; !ok {
		return 0, nil
	}
	delete(s.st.secrets, key)
	return 1, nil
}

func (s *Store) ListSecrets(_ context.Context, userID uuid.UUID) ([]*identity.APISecret, error) {
	if err := s.injected("ListSecrets"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*identity.APISecret, 0)
	for _, rec := range s.st.secrets {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RunInTx serializes transactions. fn sees a private snapshot which is
// published only when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx identity.IdentityStore) error) error {
	if s.root != nil {
		return fn(ctx, s)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	tx := &Store{
		mu:   &sync.RWMutex{},
		txMu: &sync.Mutex{},
		st:   snapshot,
		root: s,
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

// Users returns a copy of every stored identity.
func (s *Store) Users() []*identity.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*identity.User, 0, len(s.st.users))
	for _, u := range s.st.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func copyUser(u *identity.User) *identity.User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Email != nil {
		e := *u.Email
		c.Email = &e
	}
	return &c
}

func copyAccount(a *identity.LinkedAccount) *identity.LinkedAccount {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
