package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"videotube-server/internal/domain"
	"videotube-server/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AccountService struct {
	accountRepo      repository.AccountRepository
	subscriptionRepo repository.SubscriptionRepository
	videoRepo        repository.VideoRepository
	media            MediaStore
	logger           *zap.Logger
}

func NewAccountService(
	accountRepo repository.AccountRepository,
	subscriptionRepo repository.SubscriptionRepository,
	videoRepo repository.VideoRepository,
	store MediaStore,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:      accountRepo,
		subscriptionRepo: subscriptionRepo,
		videoRepo:        videoRepo,
		media:            store,
		logger:           logger.Named("account_service"),
	}
}

func (s *AccountService) UpdateDetails(ctx context.Context, accountID string, req *domain.UpdateDetailsRequest) (*domain.Account, error) {
	var patch domain.AccountPatch
	if name := strings.TrimSpace(req.FullName); name != "" {
		patch.FullName = &name
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		patch.Email = &email
	}
	if patch.IsEmpty() {
		return nil, NewValidationError("fullname or email is required")
	}

	return s.update(ctx, accountID, patch)
}

func (s *AccountService) UpdateAvatar(ctx context.Context, accountID, localPath string) (*domain.Account, error) {
	if localPath == "" {
		return nil, NewValidationError("avatar file is missing")
	}

	asset, err := s.media.Upload(ctx, localPath)
	if err != nil {
		return nil, uploadError("avatar", err)
	}

	return s.update(ctx, accountID, domain.AccountPatch{Avatar: &asset.URL})
}

func (s *AccountService) UpdateCoverImage(ctx context.Context, accountID, localPath string) (*domain.Account, error) {
	if localPath == "" {
		return nil, NewValidationError("cover image file is missing")
	}

	asset, err := s.media.Upload(ctx, localPath)
	if err != nil {
		return nil, uploadError("coverImage", err)
	}

	return s.update(ctx, accountID, domain.AccountPatch{CoverImage: &asset.URL})
}

func (s *AccountService) update(ctx context.Context, accountID string, patch domain.AccountPatch) (*domain.Account, error) {
	account, err := s.accountRepo.Update(ctx, accountID, patch)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrConflict
		}
		s.logger.Error("account update failed", zap.String("account_id", accountID), zap.Error(err))
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return account, nil
}

// ChannelProfile aggregates a channel's public fields with its subscription
// counts. viewerID may be empty for anonymous requests.
func (s *AccountService) ChannelProfile(ctx context.Context, username, viewerID string) (*domain.ChannelProfile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, NewValidationError("username is missing")
	}

	channel, err := s.accountRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}

	profile := &domain.ChannelProfile{
		ID:         channel.ID,
		Username:   channel.Username,
		FullName:   channel.FullName,
		Email:      channel.Email,
		Avatar:     channel.Avatar,
		CoverImage: channel.CoverImage,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.subscriptionRepo.CountSubscribers(gctx, channel.ID)
		profile.SubscribersCount = n
		return err
	})
	g.Go(func() error {
		n, err := s.subscriptionRepo.CountSubscriptions(gctx, channel.ID)
		profile.ChannelsSubscribedToCount = n
		return err
	})
	g.Go(func() error {
		ok, err := s.subscriptionRepo.IsSubscribed(gctx, viewerID, channel.ID)
		profile.IsSubscribed = ok
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate channel profile: %w", err)
	}

	return profile, nil
}

// WatchHistory resolves the account's watch history into videos with their
// owners, in stored order. Videos that no longer exist are skipped.
func (s *AccountService) WatchHistory(ctx context.Context, accountID string) ([]*domain.WatchHistoryEntry, error) {
	account, err := s.accountRepo.FindPublicByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	videos, err := s.videoRepo.FindByIDs(ctx, account.WatchHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch history: %w", err)
	}

	ownerIDs := make([]string, 0, len(videos))
	seen := make(map[string]bool, len(videos))
	for _, v := range videos {
		if v.OwnerID != "" && !seen[v.OwnerID] {
			seen[v.OwnerID] = true
			ownerIDs = append(ownerIDs, v.OwnerID)
		}
	}

	owners, err := s.accountRepo.FindPublicByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load video owners: %w", err)
	}
	byID := make(map[string]*domain.Owner, len(owners))
	for _, o := range owners {
		byID[o.ID] = &domain.Owner{
			ID:       o.ID,
			Username: o.Username,
			FullName: o.FullName,
			Avatar:   o.Avatar,
		}
	}

	entries := make([]*domain.WatchHistoryEntry, 0, len(videos))
	for _, v := range videos {
		entries = append(entries, &domain.WatchHistoryEntry{
			Video: *v,
			Owner: byID[v.OwnerID],
		})
	}

	return entries, nil
}

func (s *AccountService) Subscribe(ctx context.Context, subscriberID, channelID string) (*domain.Subscription, error) {
	if subscriberID == channelID {
		return nil, NewValidationError("cannot subscribe to your own channel")
	}

	if _, err := s.accountRepo.FindPublicByID(ctx, channelID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to find channel: %w", err)
	}

	if err := s.subscriptionRepo.Subscribe(ctx, subscriberID, channelID); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	return &domain.Subscription{
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (s *AccountService) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := s.subscriptionRepo.Unsubscribe(ctx, subscriberID, channelID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotSubscribed
		}
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	return nil
}
