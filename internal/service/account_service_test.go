package service

import (
	"context"
	"testing"

	"videotube-server/internal/domain"
	"videotube-server/internal/testsupport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type accountFixture struct {
	*authFixture
	subs     *testsupport.SubscriptionStore
	videos   *testsupport.VideoStore
	accounts *AccountService
}

func newAccountFixture() *accountFixture {
	f := newAuthFixture()
	subs := testsupport.NewSubscriptionStore()
	videos := testsupport.NewVideoStore()

	return &accountFixture{
		authFixture: f,
		subs:        subs,
		videos:      videos,
		accounts:    NewAccountService(f.repo, subs, videos, f.store, zap.NewNop()),
	}
}

func TestAccountService_UpdateDetails(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "alice", "a@x.com", "pw1")
	f.register(t, "bob", "b@x.com", "pw2")

	tests := []struct {
		name      string
		req       *domain.UpdateDetailsRequest
		wantErr   error
		wantName  string
		wantEmail string
	}{
		{
			name:      "fullname only",
			req:       &domain.UpdateDetailsRequest{FullName: "Alice Liddell"},
			wantName:  "Alice Liddell",
			wantEmail: "a@x.com",
		},
		{
			name:      "email is normalized",
			req:       &domain.UpdateDetailsRequest{Email: " Alice@X.com "},
			wantName:  "Alice Liddell",
			wantEmail: "alice@x.com",
		},
		{
			name:    "email taken",
			req:     &domain.UpdateDetailsRequest{Email: "b@x.com"},
			wantErr: ErrConflict,
		},
		{
			name:    "nothing to update",
			req:     &domain.UpdateDetailsRequest{FullName: "  "},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.accounts.UpdateDetails(context.Background(), alice.ID, tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.FullName)
			assert.Equal(t, tt.wantEmail, got.Email)
			assert.Empty(t, got.PasswordHash)
		})
	}
}

func TestAccountService_UpdateImages(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "alice", "a@x.com", "pw1")
	ctx := context.Background()

	got, err := f.accounts.UpdateAvatar(ctx, alice.ID, testsupport.StageFile(t, "new-avatar.png"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/new-avatar.png", got.Avatar)

	got, err = f.accounts.UpdateCoverImage(ctx, alice.ID, testsupport.StageFile(t, "new-cover.png"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/new-cover.png", got.CoverImage)
	assert.Equal(t, "http://cdn.test/new-avatar.png", got.Avatar)

	_, err = f.accounts.UpdateAvatar(ctx, alice.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	failing := testsupport.StageFile(t, "broken.png")
	f.store.Failing[failing] = true
	_, err = f.accounts.UpdateCoverImage(ctx, alice.ID, failing)
	assert.ErrorIs(t, err, ErrMediaUpload)

	_, err = f.accounts.UpdateAvatar(ctx, alice.ID, testsupport.StageContent(t, "notes.png", []byte("plain text")))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"avatar must be a jpeg, png, gif or webp image"}, verr.Fields)

	current, err := f.repo.FindByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.test/new-avatar.png", current.Avatar)
}

func TestAccountService_ChannelProfile(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "alice", "a@x.com", "pw1")
	bob := f.register(t, "bob", "b@x.com", "pw2")
	carol := f.register(t, "carol", "c@x.com", "pw3")
	ctx := context.Background()

	_, err := f.accounts.Subscribe(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.accounts.Subscribe(ctx, carol.ID, alice.ID)
	require.NoError(t, err)
	_, err = f.accounts.Subscribe(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	tests := []struct {
		name           string
		viewer         string
		wantSubscribed bool
	}{
		{name: "anonymous", viewer: ""},
		{name: "subscriber", viewer: bob.ID, wantSubscribed: true},
		{name: "owner", viewer: alice.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := f.accounts.ChannelProfile(ctx, "Alice", tt.viewer)
			require.NoError(t, err)

			assert.Equal(t, alice.ID, profile.ID)
			assert.Equal(t, "alice", profile.Username)
			assert.Equal(t, 2, profile.SubscribersCount)
			assert.Equal(t, 1, profile.ChannelsSubscribedToCount)
			assert.Equal(t, tt.wantSubscribed, profile.IsSubscribed)
		})
	}

	_, err = f.accounts.ChannelProfile(ctx, "nobody", "")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = f.accounts.ChannelProfile(ctx, " ", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAccountService_Subscriptions(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "alice", "a@x.com", "pw1")
	bob := f.register(t, "bob", "b@x.com", "pw2")
	ctx := context.Background()

	_, err := f.accounts.Subscribe(ctx, alice.ID, alice.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.accounts.Subscribe(ctx, alice.ID, "missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	sub, err := f.accounts.Subscribe(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, sub.ChannelID)

	require.NoError(t, f.accounts.Unsubscribe(ctx, alice.ID, bob.ID))
	assert.ErrorIs(t, f.accounts.Unsubscribe(ctx, alice.ID, bob.ID), ErrNotSubscribed)
}

func TestAccountService_WatchHistory(t *testing.T) {
	f := newAccountFixture()
	alice := f.register(t, "alice", "a@x.com", "pw1")
	bob := f.register(t, "bob", "b@x.com", "pw2")
	ctx := context.Background()

	f.videos.Videos["v1"] = &domain.Video{ID: "v1", Title: "First", OwnerID: bob.ID}
	f.videos.Videos["v2"] = &domain.Video{ID: "v2", Title: "Second", OwnerID: bob.ID}
	f.repo.Accounts[alice.ID].WatchHistory = []string{"v2", "gone", "v1"}

	entries, err := f.accounts.WatchHistory(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "v2", entries[0].ID)
	assert.Equal(t, "v1", entries[1].ID)
	require.NotNil(t, entries[0].Owner)
	assert.Equal(t, "bob", entries[0].Owner.Username)
	assert.Equal(t, bob.Avatar, entries[0].Owner.Avatar)

	empty, err := f.accounts.WatchHistory(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.accounts.WatchHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
