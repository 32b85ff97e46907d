package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/igabaycare/care-api/internal/config"
	"github.com/igabaycare/care-api/internal/email"
	"github.com/igabaycare/care-api/internal/model"
	"github.com/igabaycare/care-api/internal/repository"
	"github.com/igabaycare/care-api/pkg/errors"
	"github.com/igabaycare/care-api/pkg/messaging"
	"github.com/igabaycare/care-api/pkg/metrics"
)

const (
	TopicNotifications = "notifications"
	TopicPush          = "push"

	// retryLease keeps a claimed retry away from other workers while it is
	// being delivered.
	retryLease = 5 * time.Minute
)

// Notifier is what domain services use to reach users.
type Notifier interface {
	Notify(ctx context.Context, msg model.Message) error
}

type Service struct {
	repo     repository.NotificationRepository
	users    repository.UserRepository
	emailSvc email.Service
	broker   messaging.Broker
	metrics  *metrics.Metrics
	config   config.NotificationConfig
	now      func() time.Time
}

func NewService(
	repo repository.NotificationRepository,
	users repository.UserRepository,
	emailSvc email.Service,
	broker messaging.Broker,
	cfg config.NotificationConfig,
	m *metrics.Metrics,
) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.RetryBatch <= 0 {
		cfg.RetryBatch = 50
	}
	return &Service{
		repo:     repo,
		users:    users,
		emailSvc: emailSvc,
		broker:   broker,
		metrics:  m,
		config:   cfg,
		now:      time.Now,
	}
}

// Notify stores one row per channel and attempts delivery right away.
// Delivery failures are scheduled for retry; only storage errors are
// returned.
func (s *Service) Notify(ctx context.Context, msg model.Message) error {
	if msg.UserID == uuid.Nil {
		return errors.BadRequest("notification recipient is required", nil)
	}
	channels := msg.Channels
	if len(channels) == 0 {
		channels = []model.Channel{model.ChannelInApp}
	}

	rows := make([]*model.Notification, 0, len(channels))
	for _, ch := range channels {
		recipient, err := s.recipient(ctx, ch, &msg)
		if err != nil {
			log.Warn().Err(err).
				Str("user_id", msg.UserID.String()).
				Str("channel", string(ch)).
				Msg("skipping notification channel")
			continue
		}
		rows = append(rows, &model.Notification{
			ID:        uuid.New(),
			UserID:    msg.UserID,
			Channel:   ch,
			Type:      msg.Type,
			Subject:   msg.Subject,
			Content:   msg.Content,
			Recipient: recipient,
			Status:    model.NotificationStatusPending,
			Metadata:  msg.Metadata,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}
	for _, n := range rows {
		s.deliver(ctx, n)
	}
	return nil
}

func (s *Service) recipient(ctx context.Context, ch model.Channel, msg *model.Message) (string, error) {
	switch ch {
	case model.ChannelEmail:
		if msg.Email == "" {
			user, err := s.users.Get(ctx, msg.UserID)
			if err != nil {
				return "", fmt.Errorf("failed to look up email: %w", err)
			}
			msg.Email = user.Email
		}
		return msg.Email, nil
	case model.ChannelInApp, model.ChannelPush:
		return msg.UserID.String(), nil
	default:
		return "", fmt.Errorf("unsupported channel %q", ch)
	}
}

func (s *Service) send(ctx context.Context, n *model.Notification) error {
	switch n.Channel {
	case model.ChannelEmail:
		return s.emailSvc.Send(ctx, n.Recipient, n.Subject, n.Content)
	case model.ChannelInApp:
		return s.broker.Publish(ctx, TopicNotifications, toEvent(n))
	case model.ChannelPush:
		return s.broker.Publish(ctx, TopicPush, toEvent(n))
	default:
		return fmt.Errorf("unsupported channel %q", n.Channel)
	}
}

func toEvent(n *model.Notification) model.NotificationEvent {
	return model.NotificationEvent{
		ID:             uuid.New(),
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Subject:        n.Subject,
		Content:        n.Content,
		Metadata:       n.Metadata,
		CreatedAt:      n.CreatedAt,
	}
}

// deliver makes one attempt and records the result.
func (s *Service) deliver(ctx context.Context, n *model.Notification) {
	now := s.now().UTC()
	if err := s.send(ctx, n); err != nil {
		n.RetryCount++
		msg := err.Error()
		n.LastError = &msg
		if n.RetryCount >= s.config.MaxAttempts {
			n.Status = model.NotificationStatusFailed
			n.NextRetryAt = nil
		} else {
			next := now.Add(Backoff(s.config.RetryBase, n.RetryCount))
			n.Status = model.NotificationStatusRetrying
			n.NextRetryAt = &next
		}
		log.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("channel", string(n.Channel)).
			Int("attempt", n.RetryCount).
			Msg("notification delivery failed")
	} else {
		n.Status = model.NotificationStatusSent
		n.SentAt = &now
		n.NextRetryAt = nil
		n.LastError = nil
	}

	if s.metrics != nil {
		s.metrics.Notifications.WithLabelValues(string(n.Channel), string(n.Status)).Inc()
	}
	if err := s.repo.UpdateDelivery(ctx, n); err != nil {
		log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("failed to record notification delivery")
	}
}

// maxBackoffShift caps Backoff at 64x base.
const maxBackoffShift = 6

// Backoff is base * 2^(attempt-1), capped at 64x base.
func Backoff(base time.Duration, attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base << uint(shift)
}

// RetryDue re-drives notifications whose retry time has come.
func (s *Service) RetryDue(ctx context.Context) (int, error) {
	due, err := s.repo.ClaimDueRetries(ctx, s.now().UTC(), retryLease, s.config.RetryBatch)
	if err != nil {
		return 0, err
	}
	for _, n := range due {
		s.deliver(ctx, n)
	}
	return len(due), nil
}

func (s *Service) Inbox(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Page) ([]*model.Notification, int64, error) {
	return s.repo.ListInbox(ctx, userID, unreadOnly, page)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("notification", err)
		}
		return err
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, s.now().UTC())
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// Send notifies every message and logs failures instead of returning them.
// Used after a state change has committed, when there is nothing to undo.
func Send(ctx context.Context, n Notifier, msgs ...model.Message) {
	for _, msg := range msgs {
		if err := n.Notify(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("user_id", msg.UserID.String()).
				Str("type", msg.Type).
				Msg("failed to notify")
		}
	}
}
