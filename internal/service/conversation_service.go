package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/audit"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/consumer"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/metrics"
	"github.com/weiawesome/wes-io-live/conversation-service/internal/repository"
	pkglog "github.com/weiawesome/wes-io-live/conversation-service/pkg/log"
	"github.com/weiawesome/wes-io-live/conversation-service/pkg/pubsub"
)

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrRoomExists           = errors.New("room already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// conversationService implements ConversationService.
type conversationService struct {
	repos     *repository.Repositories
	publisher pubsub.Publisher
	now       func() time.Time
}

// NewConversationService creates a new ConversationService. A nil publisher
// disables change events.
func NewConversationService(repos *repository.Repositories, publisher pubsub.Publisher) ConversationService {
	if publisher == nil {
		publisher = pubsub.NopPublisher{}
	}
	return &conversationService{
		repos:     repos,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateRoom stores a new room. A taken rid yields ErrRoomExists.
func (s *conversationService) CreateRoom(ctx context.Context, room *domain.Room) (*domain.Room, error) {
	if room == nil || room.Rid == "" {
		return nil, fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}
	if room.T != "" && !room.T.Valid() {
		return nil, fmt.Errorf("%w: unknown room type %q", ErrInvalidArgument, room.T)
	}

	start := time.Now()
	err := s.repos.Rooms.CreateRoom(ctx, room)
	s.observe("create_room", start, err)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrRoomExists
		}
		return nil, err
	}

	audit.LogWithDetail(ctx, audit.ActionCreateRoom, room.U, room.Rid, string(room.T), "room created")
	return room, nil
}

// GetRoom retrieves a room by rid.
func (s *conversationService) GetRoom(ctx context.Context, rid string) (*domain.Room, error) {
	if rid == "" {
		return nil, fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}

	start := time.Now()
	room, err := s.repos.Rooms.FindByRid(ctx, rid)
	s.observe("find_room", start, err)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetRoomByType retrieves a room by rid only if it has type t.
func (s *conversationService) GetRoomByType(ctx context.Context, rid string, t domain.RoomType) (*domain.Room, error) {
	if rid == "" {
		return nil, fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown room type %q", ErrInvalidArgument, t)
	}

	start := time.Now()
	room, err := s.repos.Rooms.FindByRidAndType(ctx, rid, t)
	s.observe("find_room_by_type", start, err)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetRooms retrieves the existing rooms among rids. Missing rids are skipped.
func (s *conversationService) GetRooms(ctx context.Context, rids []string) ([]domain.Room, error) {
	start := time.Now()
	rooms, err := s.repos.Rooms.FindByRidList(ctx, rids)
	s.observe("find_rooms", start, err)
	return rooms, err
}

// ReplaceRoom overwrites every field of an existing room but its rid and creation time.
func (s *conversationService) ReplaceRoom(ctx context.Context, rid string, room *domain.Room) error {
	if rid == "" || room == nil {
		return fmt.Errorf("%w: rid and room are required", ErrInvalidArgument)
	}
	if room.T != "" && !room.T.Valid() {
		return fmt.Errorf("%w: unknown room type %q", ErrInvalidArgument, room.T)
	}

	start := time.Now()
	n, err := s.repos.Rooms.ReplaceByRid(ctx, rid, room)
	s.observe("replace_room", start, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}

	audit.Log(ctx, audit.ActionReplaceRoom, room.U, rid, "room replaced")
	s.publishRoomUpdated(ctx, rid, room.ReplaceFields(), room.LastMessageTs)
	return nil
}

// UpdateRoom applies a partial update to an existing room.
func (s *conversationService) UpdateRoom(ctx context.Context, rid string, update domain.RoomUpdate) error {
	if rid == "" {
		return fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}
	if update.T != nil && !update.T.Valid() {
		return fmt.Errorf("%w: unknown room type %q", ErrInvalidArgument, *update.T)
	}

	start := time.Now()
	n, err := s.repos.Rooms.UpdateByRid(ctx, rid, update)
	s.observe("update_room", start, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	if update.IsEmpty() {
		return nil
	}

	audit.Log(ctx, audit.ActionUpdateRoom, "", rid, "room updated")
	var ts int64
	if update.LastMessageTs != nil {
		ts = *update.LastMessageTs
	}
	s.publishRoomUpdated(ctx, rid, update.Fields(), ts)
	return nil
}

// CreateSubscriptions stores a batch of new subscriptions. A taken (u, rid)
// yields ErrSubscriptionExists; earlier items of the batch may already be stored.
func (s *conversationService) CreateSubscriptions(ctx context.Context, items []domain.CreateSubscription) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one subscription is required", ErrInvalidArgument)
	}
	for i, item := range items {
		if item.U == "" || item.Rid == "" {
			return fmt.Errorf("%w: item %d needs u and rid", ErrInvalidArgument, i)
		}
	}

	start := time.Now()
	err := s.repos.Subscriptions.CreateSubscriptions(ctx, items)
	s.observe("create_subscriptions", start, err)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return ErrSubscriptionExists
		}
		return err
	}

	audit.LogWithDetail(ctx, audit.ActionCreateSubscriptions, items[0].U, items[0].Rid,
		fmt.Sprintf("%d subscriptions", len(items)), "subscriptions created")
	return nil
}

// IncrementUnread bumps the unread counter of every user in uids for rid,
// creating missing subscriptions.
func (s *conversationService) IncrementUnread(ctx context.Context, uids []string, rid string) error {
	if rid == "" {
		return fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}
	uids = repository.Distinct(uids)
	if len(uids) == 0 {
		return nil
	}

	start := time.Now()
	err := s.repos.Subscriptions.IncrementUnread(ctx, uids, rid)
	s.observe("increment_unread", start, err)
	if err != nil {
		return err
	}

	metrics.UnreadIncrements.Add(float64(len(uids)))
	l := pkglog.Ctx(ctx)
	l.Debug().Str(pkglog.FieldRoomID, rid).Int(pkglog.FieldCount, len(uids)).Msg("unread incremented")

	for _, u := range uids {
		s.publish(ctx, pubsub.UserSubscriptionsChannel(u), pubsub.EventUnreadIncremented, u,
			pubsub.UnreadIncrementedPayload{U: u, Rid: rid})
	}
	return nil
}

// GetSubscriptions retrieves the existing subscriptions of uids in rid.
func (s *conversationService) GetSubscriptions(ctx context.Context, uids []string, rid string) ([]domain.Subscription, error) {
	if rid == "" {
		return nil, fmt.Errorf("%w: rid is required", ErrInvalidArgument)
	}

	start := time.Now()
	subs, err := s.repos.Subscriptions.FindByRidAndUids(ctx, uids, rid)
	s.observe("find_subscriptions", start, err)
	return subs, err
}

// UpdateSubscription applies a partial update to an existing subscription
// and returns the stored result.
func (s *conversationService) UpdateSubscription(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error) {
	if u == "" || rid == "" {
		return nil, fmt.Errorf("%w: u and rid are required", ErrInvalidArgument)
	}
	if err := update.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	sub, err := s.updateSubscription(ctx, u, rid, update)
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionUpdateSubscription, u, rid, "subscription updated")
	return sub, nil
}

// MarkRead clears the unread counter and records ts (epoch ms, now when zero)
// as the last-seen time.
func (s *conversationService) MarkRead(ctx context.Context, u, rid string, ts int64) (*domain.Subscription, error) {
	if u == "" || rid == "" {
		return nil, fmt.Errorf("%w: u and rid are required", ErrInvalidArgument)
	}
	if ts < 0 {
		return nil, fmt.Errorf("%w: ts must not be negative", ErrInvalidArgument)
	}
	if ts == 0 {
		ts = s.now().UnixMilli()
	}

	zero := int64(0)
	sub, err := s.updateSubscription(ctx, u, rid, domain.SubscriptionUpdate{Unread: &zero, Ls: &ts})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionMarkRead, u, rid, "subscription marked read")
	return sub, nil
}

func (s *conversationService) updateSubscription(ctx context.Context, u, rid string, update domain.SubscriptionUpdate) (*domain.Subscription, error) {
	start := time.Now()
	sub, err := s.repos.Subscriptions.UpdateOne(ctx, u, rid, update)
	s.observe("update_subscription", start, err)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}

	if !update.IsEmpty() {
		s.publish(ctx, pubsub.UserSubscriptionsChannel(u), pubsub.EventSubscriptionUpdated, u,
			pubsub.SubscriptionUpdatedPayload{U: u, Rid: rid, Unread: sub.Unread, Archived: sub.Archived})
	}
	return sub, nil
}

// ListSubscriptions returns one page of u's subscriptions.
func (s *conversationService) ListSubscriptions(ctx context.Context, u string, p domain.Pagination) ([]domain.Subscription, error) {
	if u == "" {
		return nil, fmt.Errorf("%w: u is required", ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	subs, err := s.repos.Subscriptions.FindPage(ctx, u, p)
	s.observe("find_page", start, err)
	return subs, err
}

// SubscriptionFeed returns one page of u's subscriptions joined with their
// rooms, most recently active first.
func (s *conversationService) SubscriptionFeed(ctx context.Context, u string, since int64, p domain.Pagination) ([]domain.SubscriptionFeedItem, error) {
	if u == "" {
		return nil, fmt.Errorf("%w: u is required", ErrInvalidArgument)
	}
	if since < 0 {
		return nil, fmt.Errorf("%w: since must not be negative", ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	label := "unset"
	if since != 0 {
		label = "set"
	}
	metrics.FeedQueries.WithLabelValues(label).Inc()

	start := time.Now()
	items, err := s.repos.Feed.FindSubscriptionFeed(ctx, u, since, p)
	s.observe("subscription_feed", start, err)
	return items, err
}

// HandleMessageSent records a stored message: the room's last message moves
// to the event and every recipient but the sender gets one more unread.
// Both writes run concurrently and each runs to completion, so a message for
// a room that does not exist yet still counts as unread. The first error is returned.
func (s *conversationService) HandleMessageSent(ctx context.Context, event *consumer.MessageSentEvent) error {
	if event == nil || event.Rid == "" {
		return fmt.Errorf("%w: message event without rid", ErrInvalidArgument)
	}
	ts := event.Ts
	if ts <= 0 {
		ts = s.now().UnixMilli()
	}

	recipients := make([]string, 0, len(event.Recipients))
	for _, u := range event.Recipients {
		if u != event.Sender {
			recipients = append(recipients, u)
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		text := event.Text
		return s.UpdateRoom(ctx, event.Rid, domain.RoomUpdate{LastMessageTs: &ts, LastMessage: &text})
	})
	g.Go(func() error {
		return s.IncrementUnread(ctx, recipients, event.Rid)
	})
	return g.Wait()
}

func (s *conversationService) observe(op string, start time.Time, err error) {
	metrics.ObserveStore(s.repos.Driver, op, start, err)
}

func (s *conversationService) publishRoomUpdated(ctx context.Context, rid string, fields map[string]interface{}, lastMessageTs int64) {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	s.publish(ctx, pubsub.RoomMetaChannel(rid), pubsub.EventRoomUpdated, rid,
		pubsub.RoomUpdatedPayload{Rid: rid, Fields: names, LastMessageTs: lastMessageTs})
}

// publish sends a change event. Failures are logged and never returned.
func (s *conversationService) publish(ctx context.Context, channel, eventType, key string, payload interface{}) {
	l := pkglog.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, key, payload)
	if err != nil {
		l.Warn().Err(err).Str("event_type", eventType).Msg("failed to build change event")
		return
	}
	if err := s.publisher.Publish(ctx, channel, event); err != nil {
		l.Warn().Err(err).Str("channel", channel).Str("event_type", eventType).Msg("failed to publish change event")
	}
}
