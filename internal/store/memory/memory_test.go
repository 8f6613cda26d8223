package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatube/internal/models"
	"yatube/internal/store"
)

func seedUser(t *testing.T, s *Store, name string) models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	s := New()
	seedUser(t, s, "sarah")

	_, err := s.CreateUser(context.Background(), models.User{Username: "Sarah", Email: "other@example.com"})
	assert.True(t, errors.Is(err, store.ErrConflict))

	_, err = s.CreateUser(context.Background(), models.User{Username: "john", Email: "SARAH@example.com"})
	assert.True(t, errors.Is(err, store.ErrConflict))
}

func TestListPostsNewestFirstWithPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	u := seedUser(t, s, "sarah")

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := s.CreatePost(ctx, models.Post{AuthorID: u.ID, Text: text})
		require.NoError(t, err)
	}

	page, err := s.ListPosts(ctx, store.PostQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "four", page[0].Text)
	assert.Equal(t, "sarah", page[0].Author)

	rest, err := s.ListPosts(ctx, store.PostQuery{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "one", rest[0].Text)

	n, err := s.CountPosts(ctx, store.PostQuery{AuthorID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestUpdatePostKeepsPubDate(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s, "sarah")
	p, err := s.CreatePost(ctx, models.Post{AuthorID: u.ID, Text: "before"})
	require.NoError(t, err)

	updated, err := s.UpdatePost(ctx, models.Post{ID: p.ID, Text: "after", PubDate: time.Now().Add(time.Hour), AuthorID: 999})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Text)
	assert.True(t, p.PubDate.Equal(updated.PubDate))
	assert.Equal(t, u.ID, updated.AuthorID)
}

func TestFollowIsIdempotentAndFeedFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	follower := seedUser(t, s, "follower")
	author := seedUser(t, s, "following")
	third := seedUser(t, s, "third")

	created, err := s.Follow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Follow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.False(t, created)

	n, _ := s.CountFollows(ctx)
	assert.Equal(t, 1, n)

	_, err = s.Follow(ctx, follower.ID, follower.ID)
	assert.ErrorIs(t, err, store.ErrSelfFollow)

	_, err = s.CreatePost(ctx, models.Post{AuthorID: author.ID, Text: "My first post"})
	require.NoError(t, err)

	feed, err := s.ListPosts(ctx, store.PostQuery{FollowerID: follower.ID})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "My first post", feed[0].Text)

	empty, err := s.ListPosts(ctx, store.PostQuery{FollowerID: third.ID})
	require.NoError(t, err)
	assert.Empty(t, empty)

	removed, err := s.Unfollow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.Unfollow(ctx, follower.ID, author.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestDeleteGroupDetachesPosts(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s, "sarah")
	g, err := s.CreateGroup(ctx, models.Group{Title: "Cats", Slug: "cats"})
	require.NoError(t, err)
	p, err := s.CreatePost(ctx, models.Post{AuthorID: u.ID, Text: "meow", GroupID: &g.ID})
	require.NoError(t, err)
	assert.Equal(t, "cats", p.GroupSlug)

	require.NoError(t, s.DeleteGroup(ctx, g.ID))

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
	assert.Empty(t, got.GroupSlug)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	sarah := seedUser(t, s, "sarah")
	john := seedUser(t, s, "john")

	sarahPost, err := s.CreatePost(ctx, models.Post{AuthorID: sarah.ID, Text: "hers"})
	require.NoError(t, err)
	johnPost, err := s.CreatePost(ctx, models.Post{AuthorID: john.ID, Text: "his"})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, models.Comment{PostID: sarahPost.ID, AuthorID: john.ID, Text: "on hers"})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, models.Comment{PostID: johnPost.ID, AuthorID: sarah.ID, Text: "on his"})
	require.NoError(t, err)
	_, err = s.Follow(ctx, john.ID, sarah.ID)
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, models.Session{ID: "sid", UserID: sarah.ID, ExpiresAt: time.Now().Add(time.Hour)}))

	require.NoError(t, s.DeleteUser(ctx, sarah.ID))

	_, err = s.GetPost(ctx, sarahPost.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetSession(ctx, "sid")
	assert.ErrorIs(t, err, store.ErrNotFound)

	comments, _ := s.CountComments(ctx)
	assert.Equal(t, 0, comments)
	follows, _ := s.CountFollows(ctx)
	assert.Equal(t, 0, follows)

	remaining, err := s.GetPost(ctx, johnPost.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining.CommentCount)
}

func TestDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := seedUser(t, s, "sarah")
	now := time.Now()
	require.NoError(t, s.CreateSession(ctx, models.Session{ID: "old", UserID: u.ID, ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.CreateSession(ctx, models.Session{ID: "new", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, "new")
	assert.NoError(t, err)
}
