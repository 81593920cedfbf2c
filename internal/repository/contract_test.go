package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/conversation-service/internal/domain"
)

// newReposFunc returns repositories over an empty store.
type newReposFunc func(t *testing.T) *Repositories

// runRepositoryContract checks the behaviour every store driver must share.
func runRepositoryContract(t *testing.T, newRepos newReposFunc) {
	t.Run("create and find room", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		room := &domain.Room{Rid: "r1", T: domain.RoomTypeChannel, Name: "general", U: "alice"}
		require.NoError(t, repos.Rooms.CreateRoom(ctx, room))
		assert.False(t, room.CreatedAt.IsZero())

		got, err := repos.Rooms.FindByRid(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "general", got.Name)
		assert.Equal(t, domain.RoomTypeChannel, got.T)
		assert.WithinDuration(t, room.CreatedAt, got.CreatedAt, time.Millisecond)

		got, err = repos.Rooms.FindByRidAndType(ctx, "r1", domain.RoomTypeChannel)
		require.NoError(t, err)
		require.NotNil(t, got)

		got, err = repos.Rooms.FindByRidAndType(ctx, "r1", domain.RoomTypeDirect)
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = repos.Rooms.FindByRid(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate rid is rejected", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r1", T: domain.RoomTypeChannel, Name: "first"}))
		err := repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r1", T: domain.RoomTypeDirect, Name: "second"})
		require.ErrorIs(t, err, ErrDuplicateKey)

		got, err := repos.Rooms.FindByRid(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
	})

	t.Run("find room list", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		for _, rid := range []string{"r1", "r2", "r3"} {
			require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: rid, T: domain.RoomTypeChannel}))
		}

		rooms, err := repos.Rooms.FindByRidList(ctx, []string{"r1", "r3", "missing", "r1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"r1", "r3"}, roomRids(rooms))

		rooms, err = repos.Rooms.FindByRidList(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("replace keeps rid and createdAt", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		original := &domain.Room{Rid: "r1", T: domain.RoomTypeChannel, Name: "old", Topic: "topic", Msgs: 4}
		require.NoError(t, repos.Rooms.CreateRoom(ctx, original))

		n, err := repos.Rooms.ReplaceByRid(ctx, "r1", &domain.Room{Rid: "ignored", T: domain.RoomTypePrivate, Name: "new"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repos.Rooms.FindByRid(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.Name)
		assert.Equal(t, domain.RoomTypePrivate, got.T)
		assert.Empty(t, got.Topic)
		assert.Zero(t, got.Msgs)
		assert.WithinDuration(t, original.CreatedAt, got.CreatedAt, time.Millisecond)

		gone, err := repos.Rooms.FindByRid(ctx, "ignored")
		require.NoError(t, err)
		assert.Nil(t, gone)

		n, err = repos.Rooms.ReplaceByRid(ctx, "missing", &domain.Room{Name: "x"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("update touches only set fields", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r1", T: domain.RoomTypeChannel, Name: "general", Topic: "chat"}))

		ts := int64(200)
		msg := "hi"
		n, err := repos.Rooms.UpdateByRid(ctx, "r1", domain.RoomUpdate{LastMessageTs: &ts, LastMessage: &msg})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		got, err := repos.Rooms.FindByRid(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, int64(200), got.LastMessageTs)
		assert.Equal(t, "hi", got.LastMessage)
		assert.Equal(t, "general", got.Name)
		assert.Equal(t, "chat", got.Topic)

		// Writing the values already stored still counts as a match.
		n, err = repos.Rooms.UpdateByRid(ctx, "r1", domain.RoomUpdate{LastMessageTs: &ts})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repos.Rooms.UpdateByRid(ctx, "r1", domain.RoomUpdate{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repos.Rooms.UpdateByRid(ctx, "missing", domain.RoomUpdate{LastMessageTs: &ts})
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repos.Rooms.UpdateByRid(ctx, "missing", domain.RoomUpdate{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("create subscriptions stamps defaults", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		before := time.Now().Add(-time.Second)
		err := repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{
			{U: "alice", Rid: "r1", Name: "general", T: domain.RoomTypeChannel, Open: true, Archived: true},
			{U: "bob", Rid: "r1", Name: "general", T: domain.RoomTypeChannel},
		})
		require.NoError(t, err)

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"alice", "bob"}, "r1")
		require.NoError(t, err)
		require.Len(t, subs, 2)
		for _, s := range subs {
			assert.False(t, s.Archived)
			assert.Zero(t, s.Unread)
			assert.True(t, s.Ts.After(before))
			assert.Equal(t, "general", s.Name)
		}

		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, nil))
	})

	t.Run("duplicate subscription is rejected", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{{U: "alice", Rid: "r1"}}))

		err := repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{{U: "alice", Rid: "r1", Name: "again"}})
		require.ErrorIs(t, err, ErrDuplicateKey)

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"alice"}, "r1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Empty(t, subs[0].Name)
	})

	t.Run("increment unread upserts", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{
			{U: "alice", Rid: "r1", Name: "general", Open: true},
		}))

		require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, []string{"alice", "bob", "alice"}, "r1"))

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"alice", "bob"}, "r1")
		require.NoError(t, err)
		byUser := subscriptionsByUser(subs)
		require.Equal(t, []string{"alice", "bob"}, sortedKeys(byUser))

		assert.Equal(t, int64(1), byUser["alice"].Unread)
		assert.Equal(t, "general", byUser["alice"].Name)
		assert.True(t, byUser["alice"].Open)

		assert.Equal(t, int64(1), byUser["bob"].Unread)
		assert.False(t, byUser["bob"].Archived)
		assert.False(t, byUser["bob"].Ts.IsZero())

		require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, []string{"bob"}, "r1"))
		subs, err = repos.Subscriptions.FindByRidAndUids(ctx, []string{"bob"}, "r1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, int64(2), subs[0].Unread)

		require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, nil, "r1"))
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repos.Subscriptions.IncrementUnread(ctx, []string{"alice"}, "r1")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"alice"}, "r1")
		require.NoError(t, err)
		require.Len(t, subs, 1)
		assert.Equal(t, int64(workers), subs[0].Unread)
	})

	t.Run("update subscription", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{{U: "alice", Rid: "r1", Name: "general"}}))
		require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, []string{"alice"}, "r1"))

		zero := int64(0)
		archived := true
		got, err := repos.Subscriptions.UpdateOne(ctx, "alice", "r1", domain.SubscriptionUpdate{Unread: &zero, Archived: &archived})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Zero(t, got.Unread)
		assert.True(t, got.Archived)
		assert.Equal(t, "general", got.Name)

		// Same values again: still found, nothing changes.
		got, err = repos.Subscriptions.UpdateOne(ctx, "alice", "r1", domain.SubscriptionUpdate{Unread: &zero})
		require.NoError(t, err)
		require.NotNil(t, got)

		got, err = repos.Subscriptions.UpdateOne(ctx, "alice", "r1", domain.SubscriptionUpdate{})
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.Archived)

		got, err = repos.Subscriptions.UpdateOne(ctx, "bob", "r1", domain.SubscriptionUpdate{Unread: &zero})
		require.NoError(t, err)
		assert.Nil(t, got)

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"bob"}, "r1")
		require.NoError(t, err)
		assert.Empty(t, subs)
	})

	t.Run("find page", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		items := make([]domain.CreateSubscription, 0, 26)
		for i := 0; i < 25; i++ {
			items = append(items, domain.CreateSubscription{U: "alice", Rid: fmt.Sprintf("r%02d", i), Name: fmt.Sprintf("n%02d", i)})
		}
		items = append(items, domain.CreateSubscription{U: "bob", Rid: "r00", Name: "n00"})
		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, items))

		page, err := repos.Subscriptions.FindPage(ctx, "alice", domain.Pagination{
			Page: 1, PageSize: 10, SortBy: domain.SortByName, SortOrder: domain.SortAsc,
		})
		require.NoError(t, err)
		require.Len(t, page, 10)
		for i, s := range page {
			assert.Equal(t, fmt.Sprintf("n%02d", i+10), s.Name)
			assert.Equal(t, "alice", s.U)
		}

		page, err = repos.Subscriptions.FindPage(ctx, "alice", domain.Pagination{
			Page: 0, PageSize: 3, SortBy: domain.SortByRid, SortOrder: domain.SortDesc,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"r24", "r23", "r22"}, subscriptionRids(page))

		page, err = repos.Subscriptions.FindPage(ctx, "alice", domain.Pagination{Page: 2, PageSize: 10})
		require.NoError(t, err)
		assert.Len(t, page, 5)

		page, err = repos.Subscriptions.FindPage(ctx, "alice", domain.Pagination{Page: 5, PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, page)
	})

	t.Run("subscription feed", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		for rid, ts := range map[string]int64{"r1": 100, "r2": 300, "r3": 200} {
			require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{
				Rid: rid, T: domain.RoomTypeChannel, Name: "room " + rid, LastMessageTs: ts,
			}))
		}
		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{
			{U: "alice", Rid: "r1"},
			{U: "alice", Rid: "r2"},
			{U: "alice", Rid: "r3"},
			{U: "alice", Rid: "orphan"},
			{U: "bob", Rid: "r1"},
		}))

		feed, err := repos.Feed.FindSubscriptionFeed(ctx, "alice", 0, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"r2", "r3", "r1"}, feedRids(feed))
		for _, item := range feed {
			assert.Equal(t, "alice", item.U)
			assert.Equal(t, item.Rid, item.RoomData.Rid)
			assert.Equal(t, "room "+item.Rid, item.RoomData.Name)
		}

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "alice", 150, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"r2", "r3"}, feedRids(feed))

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "alice", 300, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, feed)

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "alice", 0, domain.Pagination{Page: 1, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"r3"}, feedRids(feed))

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "nobody", 0, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, feed)
	})

	t.Run("message flow", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r1", T: domain.RoomTypeDirect}))
		require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r2", T: domain.RoomTypeChannel}))
		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{
			{U: "alice", Rid: "r1"}, {U: "bob", Rid: "r1"}, {U: "alice", Rid: "r2"},
		}))

		ts := int64(1000)
		_, err := repos.Rooms.UpdateByRid(ctx, "r1", domain.RoomUpdate{LastMessageTs: &ts})
		require.NoError(t, err)
		require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, []string{"bob"}, "r1"))

		ts = 2000
		_, err = repos.Rooms.UpdateByRid(ctx, "r2", domain.RoomUpdate{LastMessageTs: &ts})
		require.NoError(t, err)

		feed, err := repos.Feed.FindSubscriptionFeed(ctx, "alice", 0, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"r2", "r1"}, feedRids(feed))

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "bob", 500, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		require.Len(t, feed, 1)
		assert.Equal(t, int64(1), feed[0].Unread)
		assert.Equal(t, int64(1000), feed[0].RoomData.LastMessageTs)
	})

	t.Run("feed pages follow room recency", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		items := make([]domain.CreateSubscription, 0, 25)
		for i := 0; i < 25; i++ {
			rid := fmt.Sprintf("r%02d", i)
			require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{
				Rid: rid, T: domain.RoomTypeChannel, LastMessageTs: int64(1000 + i*10),
			}))
			items = append(items, domain.CreateSubscription{U: "alice", Rid: rid})
		}
		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, items))

		// ranks 11 to 20 by lastMessageTs descending
		feed, err := repos.Feed.FindSubscriptionFeed(ctx, "alice", 0, domain.Pagination{Page: 1, PageSize: 10})
		require.NoError(t, err)
		want := make([]string, 0, 10)
		for i := 14; i >= 5; i-- {
			want = append(want, fmt.Sprintf("r%02d", i))
		}
		assert.Equal(t, want, feedRids(feed))

		feed, err = repos.Feed.FindSubscriptionFeed(ctx, "alice", 0, domain.Pagination{Page: 2, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"r04", "r03", "r02", "r01", "r00"}, feedRids(feed))
	})

	t.Run("repeated increments for several users", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		require.NoError(t, repos.Rooms.CreateRoom(ctx, &domain.Room{Rid: "r1", T: domain.RoomTypeDirect, LastMessageTs: 100}))
		require.NoError(t, repos.Subscriptions.CreateSubscriptions(ctx, []domain.CreateSubscription{
			{U: "alice", Rid: "r1"}, {U: "bob", Rid: "r1"},
		}))

		for i := 0; i < 3; i++ {
			require.NoError(t, repos.Subscriptions.IncrementUnread(ctx, []string{"alice", "bob"}, "r1"))
		}

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"alice", "bob"}, "r1")
		require.NoError(t, err)
		byUser := subscriptionsByUser(subs)
		require.Equal(t, []string{"alice", "bob"}, sortedKeys(byUser))
		assert.Equal(t, int64(3), byUser["alice"].Unread)
		assert.Equal(t, int64(3), byUser["bob"].Unread)

		ts := int64(200)
		_, err = repos.Rooms.UpdateByRid(ctx, "r1", domain.RoomUpdate{LastMessageTs: &ts})
		require.NoError(t, err)

		feed, err := repos.Feed.FindSubscriptionFeed(ctx, "bob", 150, domain.Pagination{PageSize: 10})
		require.NoError(t, err)
		require.Len(t, feed, 1)
		assert.Equal(t, int64(3), feed[0].Unread)
		assert.Equal(t, int64(200), feed[0].RoomData.LastMessageTs)
	})

	t.Run("concurrent increments of overlapping users", func(t *testing.T) {
		repos := newRepos(t)
		ctx := context.Background()

		const workers = 10
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			uids := []string{"bob", "carol"}
			if i%2 == 1 {
				uids = []string{"carol", "bob"}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repos.Subscriptions.IncrementUnread(ctx, uids, "r1")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		subs, err := repos.Subscriptions.FindByRidAndUids(ctx, []string{"bob", "carol"}, "r1")
		require.NoError(t, err)
		byUser := subscriptionsByUser(subs)
		assert.Equal(t, int64(workers), byUser["bob"].Unread)
		assert.Equal(t, int64(workers), byUser["carol"].Unread)
	})
}

func roomRids(rooms []domain.Room) []string {
	rids := make([]string, len(rooms))
	for i, r := range rooms {
		rids[i] = r.Rid
	}
	return rids
}

func subscriptionRids(subs []domain.Subscription) []string {
	rids := make([]string, len(subs))
	for i, s := range subs {
		rids[i] = s.Rid
	}
	return rids
}

func feedRids(items []domain.SubscriptionFeedItem) []string {
	rids := make([]string, len(items))
	for i, item := range items {
		rids[i] = item.Rid
	}
	return rids
}

func subscriptionsByUser(subs []domain.Subscription) map[string]domain.Subscription {
	out := make(map[string]domain.Subscription, len(subs))
	for _, s := range subs {
		out[s.U] = s
	}
	return out
}

func sortedKeys(m map[string]domain.Subscription) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
