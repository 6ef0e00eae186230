package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/reformer/internal/billing/domain"
	"github.com/google/uuid"
)

// DefaultPlaybackTTL is the lifetime of an issued playback credential.
const DefaultPlaybackTTL = time.Hour

// PlaybackCredential is returned to an entitled viewer.
type PlaybackCredential struct {
	Token        string    `json:"token"`
	URL          string    `json:"url"`
	ExpiresAt    time.Time `json:"expires_at"`
	Watermark    string    `json:"watermark"`
	ThumbnailURL string    `json:"thumbnail_url"`
	EmbedURL     string    `json:"embed_url"`
}

// PlaybackService issues stream credentials after the resolver allows access.
type PlaybackService struct {
	resolver     *Resolver
	signers      []PlaybackSigner
	customerCode string
	ttl          time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewPlaybackService creates the service. Signers are tried in order and the
// first enabled one is used.
func NewPlaybackService(resolver *Resolver, customerCode string, ttl time.Duration, logger *slog.Logger, signers ...PlaybackSigner) *PlaybackService {
	if ttl <= 0 {
		ttl = DefaultPlaybackTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackService{
		resolver:     resolver,
		signers:      signers,
		customerCode: customerCode,
		ttl:          ttl,
		logger:       logger,
		now:          time.Now,
	}
}

// Issue checks access to the video and returns a playback credential.
// A denied check returns *domain.AccessDeniedError.
func (s *PlaybackService) Issue(ctx context.Context, userID uuid.UUID, email string, videoID uuid.UUID) (*PlaybackCredential, error) {
	decision, item, err := s.resolver.CanAccessVideo(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}
	if err := decision.Err(); err != nil {
		return nil, err
	}
	if item.PlaybackID == "" {
		return nil, fmt.Errorf("%w: video has no playback id", domain.ErrContentNotFound)
	}

	token, err := s.sign(ctx, item.PlaybackID)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("https://customer-%s.cloudflarestream.com/%s", s.customerCode, token)
	thumbnail := item.ThumbnailURL
	if thumbnail == "" {
		thumbnail = base + "/thumbnails/thumbnail.jpg"
	}
	return &PlaybackCredential{
		Token:        token,
		URL:          base + "/manifest/video.m3u8",
		ExpiresAt:    s.now().UTC().Add(s.ttl),
		Watermark:    email,
		ThumbnailURL: thumbnail,
		EmbedURL:     base + "/iframe",
	}, nil
}

func (s *PlaybackService) sign(ctx context.Context, playbackID string) (string, error) {
	for _, signer := range s.signers {
		if signer == nil || !signer.Enabled() {
			continue
		}
		token, err := signer.Sign(ctx, playbackID, s.ttl)
		if err != nil {
			return "", fmt.Errorf("%s: sign playback: %w", signer.Name(), err)
		}
		return token, nil
	}
	s.logger.Warn("no playback signer configured, issuing unsigned url", "playback_id", playbackID)
	return playbackID, nil
}
