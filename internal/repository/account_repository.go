package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"videotube-server/internal/domain"
	"videotube-server/pkg/hash"

	"github.com/go-kivik/kivik/v4"
)

const (
	accountType = "account"
	uniqueType  = "unique"
)

// publicFields is the Mango projection for reads that must never see
// credential material.
var publicFields = []string{
	"_id", "_rev", "type", "account_id", "username", "email", "fullname",
	"avatar", "cover_image", "watch_history", "created_at", "updated_at",
}

type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account, password string) error
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindPublicByID(ctx context.Context, id string) (*domain.Account, error)
	FindPublicByIDs(ctx context.Context, ids []string) ([]*domain.Account, error)
	FindByUsername(ctx context.Context, username string) (*domain.Account, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error)
	Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error)
	SetPassword(ctx context.Context, id, password string) error
	SetRefreshToken(ctx context.Context, id, token string) error
	SwapRefreshToken(ctx context.Context, id, current, next string) error
	Delete(ctx context.Context, id string) error
}

type accountDocument struct {
	ID           string    `json:"_id"`
	Rev          string    `json:"_rev,omitempty"`
	Type         string    `json:"type"`
	AccountID    string    `json:"account_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullname"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"cover_image"`
	Password     string    `json:"password,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	WatchHistory []string  `json:"watch_history"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (d *accountDocument) toDomain() *domain.Account {
	history := d.WatchHistory
	if history == nil {
		history = []string{}
	}
	return &domain.Account{
		ID:           d.AccountID,
		Username:     d.Username,
		Email:        d.Email,
		FullName:     d.FullName,
		Avatar:       d.Avatar,
		CoverImage:   d.CoverImage,
		WatchHistory: history,
		PasswordHash: d.Password,
		RefreshToken: d.RefreshToken,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// uniqueDocument reserves a username or email. CouchDB rejects a second PUT of
// the same _id with 409, which makes the claim atomic.
type uniqueDocument struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Field     string    `json:"field"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

type accountRepository struct {
	client *kivik.Client
	dbName string
}

func NewAccountRepository(client *kivik.Client, dbName string) AccountRepository {
	return &accountRepository{
		client: client,
		dbName: dbName,
	}
}

func accountDocID(id string) string {
	return fmt.Sprintf("account:%s", id)
}

func uniqueDocID(field, value string) string {
	return fmt.Sprintf("%s:%s", field, strings.ToLower(value))
}

func (r *accountRepository) Create(ctx context.Context, account *domain.Account, password string) error {
	hashed, err := hash.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	account.PasswordHash = hashed
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.WatchHistory == nil {
		account.WatchHistory = []string{}
	}

	if err := r.claim(ctx, "username", account.Username, account.ID); err != nil {
		return err
	}
	if err := r.claim(ctx, "email", account.Email, account.ID); err != nil {
		r.release(ctx, "username", account.Username)
		return err
	}

	doc := &accountDocument{
		ID:           accountDocID(account.ID),
		Type:         accountType,
		AccountID:    account.ID,
		Username:     account.Username,
		Email:        account.Email,
		FullName:     account.FullName,
		Avatar:       account.Avatar,
		CoverImage:   account.CoverImage,
		Password:     hashed,
		WatchHistory: account.WatchHistory,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	db := r.client.DB(r.dbName)
	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		r.release(ctx, "username", account.Username)
		r.release(ctx, "email", account.Email)
		if isConflict(err) {
			return fmt.Errorf("account %s: %w", account.ID, ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

func (r *accountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *accountRepository) FindPublicByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, map[string]interface{}{
		"_id":  accountDocID(id),
		"type": accountType,
	})
}

func (r *accountRepository) FindPublicByIDs(ctx context.Context, ids []string) ([]*domain.Account, error) {
	if len(ids) == 0 {
		return []*domain.Account{}, nil
	}

	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = accountDocID(id)
	}

	return r.find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{
			"_id":  map[string]interface{}{"$in": docIDs},
			"type": accountType,
		},
		"fields": publicFields,
		"limit":  len(docIDs),
	})
}

func (r *accountRepository) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.findOne(ctx, map[string]interface{}{
		"type":     accountType,
		"username": strings.ToLower(username),
	})
}

// FindByUsernameOrEmail returns the full account, password hash included, so
// the caller can verify credentials. Empty arguments are left out of the $or.
func (r *accountRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.Account, error) {
	var or []map[string]interface{}
	if username != "" {
		or = append(or, map[string]interface{}{"username": strings.ToLower(username)})
	}
	if email != "" {
		or = append(or, map[string]interface{}{"email": strings.ToLower(email)})
	}
	if len(or) == 0 {
		return nil, ErrNotFound
	}

	db := r.client.DB(r.dbName)
	rows := db.Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{
			"type": accountType,
			"$or":  or,
		},
		"limit": 1,
	})
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query account by username or email: %w", err)
		}
		return nil, ErrNotFound
	}

	var doc accountDocument
	if err := rows.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	return doc.toDomain(), nil
}

func (r *accountRepository) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	doc, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}

	var claimedEmail, releasedEmail string
	if patch.Email != nil {
		next := strings.ToLower(*patch.Email)
		if next != doc.Email {
			if err := r.claim(ctx, "email", next, id); err != nil {
				return nil, err
			}
			claimedEmail, releasedEmail = next, doc.Email
			doc.Email = next
		}
	}
	if patch.FullName != nil {
		doc.FullName = *patch.FullName
	}
	if patch.Avatar != nil {
		doc.Avatar = *patch.Avatar
	}
	if patch.CoverImage != nil {
		doc.CoverImage = *patch.CoverImage
	}

	if err := r.put(ctx, doc); err != nil {
		if claimedEmail != "" {
			r.release(ctx, "email", claimedEmail)
		}
		return nil, err
	}
	if releasedEmail != "" {
		r.release(ctx, "email", releasedEmail)
	}

	return doc.toDomain().Sanitized(), nil
}

func (r *accountRepository) SetPassword(ctx context.Context, id, password string) error {
	hashed, err := hash.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	doc.Password = hashed
	return r.put(ctx, doc)
}

// SetRefreshToken overwrites the stored refresh token. An empty token clears it.
func (r *accountRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	doc.RefreshToken = token
	return r.put(ctx, doc)
}

// SwapRefreshToken replaces current with next only if current is still the
// stored value. The write carries the revision that was compared, so a
// concurrent swap makes this one fail with ErrTokenMismatch.
func (r *accountRepository) SwapRefreshToken(ctx context.Context, id, current, next string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if current == "" || doc.RefreshToken != current {
		return ErrTokenMismatch
	}

	doc.RefreshToken = next
	if err := r.put(ctx, doc); err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrTokenMismatch
		}
		return err
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, id string) error {
	doc, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	if _, err := db.Delete(ctx, doc.ID, doc.Rev); err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to delete account: %w", err)
	}

	r.release(ctx, "username", doc.Username)
	r.release(ctx, "email", doc.Email)
	return nil
}

func (r *accountRepository) get(ctx context.Context, id string) (*accountDocument, error) {
	db := r.client.DB(r.dbName)

	var doc accountDocument
	if err := db.Get(ctx, accountDocID(id)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &doc, nil
}

func (r *accountRepository) put(ctx context.Context, doc *accountDocument) error {
	doc.UpdatedAt = time.Now().UTC()

	db := r.client.DB(r.dbName)
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		if isConflict(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	doc.Rev = rev
	return nil
}

func (r *accountRepository) findOne(ctx context.Context, selector map[string]interface{}) (*domain.Account, error) {
	accounts, err := r.find(ctx, map[string]interface{}{
		"selector": selector,
		"fields":   publicFields,
		"limit":    1,
	})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNotFound
	}
	return accounts[0], nil
}

func (r *accountRepository) find(ctx context.Context, query map[string]interface{}) ([]*domain.Account, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(ctx, query)
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var doc accountDocument
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, doc.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return accounts, nil
}

func (r *accountRepository) claim(ctx context.Context, field, value, accountID string) error {
	db := r.client.DB(r.dbName)

	doc := &uniqueDocument{
		ID:        uniqueDocID(field, value),
		Type:      uniqueType,
		Field:     field,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		if isConflict(err) {
			return &DuplicateError{Field: field}
		}
		return fmt.Errorf("failed to claim %s: %w", field, err)
	}
	return nil
}

// release drops a claim. Failures are ignored; a stale claim only blocks the
// value from reuse.
func (r *accountRepository) release(ctx context.Context, field, value string) {
	db := r.client.DB(r.dbName)
	docID := uniqueDocID(field, value)

	rev, err := db.GetRev(ctx, docID)
	if err != nil {
		return
	}
	db.Delete(ctx, docID, rev)
}
