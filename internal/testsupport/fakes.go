// Package testsupport holds in-memory stand-ins for the stores, shared by
// service and handler tests.
package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"videotube-server/internal/domain"
	"videotube-server/internal/media"
	"videotube-server/internal/repository"
	"videotube-server/pkg/hash"
)

type AccountStore struct {
	mu       sync.Mutex
	Accounts map[string]*domain.Account

	SetRefreshErr error
	ReloadErr     error
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		Accounts: make(map[string]*domain.Account),
	}
}

func (m *AccountStore) Create(ctx context.Context, account *domain.Account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.Accounts {
		if a.Username == account.Username {
			return &repository.DuplicateError{Field: "username"}
		}
		if a.Email == account.Email {
			return &repository.DuplicateError{Field: "email"}
		}
	}

	hashed, err := hash.Hash(password)
	if err != nil {
		return err
	}
	account.PasswordHash = hashed
	if account.WatchHistory == nil {
		account.WatchHistory = []string{}
	}

	stored := *account
	m.Accounts[account.ID] = &stored
	return nil
}

func (m *AccountStore) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *AccountStore) FindPublicByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.ReloadErr != nil {
		return nil, m.ReloadErr
	}
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Sanitized(), nil
}

func (m *AccountStore) FindPublicByIDs(ctx context.Context, ids []string) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, id := range ids {
		if a, err := m.FindPublicByID(ctx, id); err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *AccountStore) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.Accounts {
		if a.Username == username {
			return a.Sanitized(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *AccountStore) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.Accounts {
		if (username != "" && a.Username == username) || (email != "" && a.Email == email) {
			c := *a
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *AccountStore) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Email != nil {
		for otherID, other := range m.Accounts {
			if otherID != id && other.Email == *patch.Email {
				return nil, &repository.DuplicateError{Field: "email"}
			}
		}
		a.Email = *patch.Email
	}
	if patch.FullName != nil {
		a.FullName = *patch.FullName
	}
	if patch.Avatar != nil {
		a.Avatar = *patch.Avatar
	}
	if patch.CoverImage != nil {
		a.CoverImage = *patch.CoverImage
	}
	return a.Sanitized(), nil
}

func (m *AccountStore) SetPassword(ctx context.Context, id, password string) error {
	hashed, err := hash.Hash(password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hashed
	return nil
}

func (m *AccountStore) SetRefreshToken(ctx context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetRefreshErr != nil {
		return m.SetRefreshErr
	}
	a, ok := m.Accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.RefreshToken = token
	return nil
}

func (m *AccountStore) SwapRefreshToken(ctx context.Context, id, current, next string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.Accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	if current == "" || a.RefreshToken != current {
		return repository.ErrTokenMismatch
	}
	a.RefreshToken = next
	return nil
}

func (m *AccountStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.Accounts, id)
	return nil
}

func (m *AccountStore) StoredRefreshToken(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Accounts[id].RefreshToken
}

type MediaStore struct {
	mu       sync.Mutex
	Uploaded []string
	Failing  map[string]bool
	FailAll  bool
}

func NewMediaStore() *MediaStore {
	return &MediaStore{Failing: make(map[string]bool)}
}

func (m *MediaStore) Upload(ctx context.Context, localPath string) (*media.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	defer os.Remove(localPath)
	if _, err := media.DetectImage(localPath); err != nil {
		return nil, err
	}
	if m.FailAll || m.Failing[localPath] {
		return nil, errors.New("media host unavailable")
	}
	m.Uploaded = append(m.Uploaded, localPath)

	key := filepath.Base(localPath)
	return &media.Asset{Key: key, URL: "http://cdn.test/" + key}, nil
}

type SubscriptionStore struct {
	mu   sync.Mutex
	subs map[[2]string]bool
}

func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{subs: make(map[[2]string]bool)}
}

func (m *SubscriptionStore) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[[2]string{subscriberID, channelID}] = true
	return nil
}

func (m *SubscriptionStore) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{subscriberID, channelID}
	if !m.subs[key] {
		return repository.ErrNotFound
	}
	delete(m.subs, key)
	return nil
}

func (m *SubscriptionStore) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.subs {
		if key[1] == channelID {
			n++
		}
	}
	return n, nil
}

func (m *SubscriptionStore) CountSubscriptions(ctx context.Context, subscriberID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.subs {
		if key[0] == subscriberID {
			n++
		}
	}
	return n, nil
}

func (m *SubscriptionStore) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[[2]string{subscriberID, channelID}], nil
}

type VideoStore struct {
	Videos map[string]*domain.Video
}

func NewVideoStore() *VideoStore {
	return &VideoStore{Videos: make(map[string]*domain.Video)}
}

func (m *VideoStore) FindByIDs(ctx context.Context, ids []string) ([]*domain.Video, error) {
	out := make([]*domain.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := m.Videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// PNGHeader is enough of a PNG for content sniffing to accept it.
var PNGHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// StageFile writes a throwaway PNG upload and returns its path.
func StageFile(t *testing.T, name string) string {
	t.Helper()
	return StageContent(t, name, PNGHeader)
}

// StageContent writes content as a throwaway upload and returns its path.
func StageContent(t *testing.T, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, content, 0o600); err != nil {
		t.Fatalf("failed to stage %s: %v", name, err)
	}
	return p
}
