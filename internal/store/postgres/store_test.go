package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatube/internal/models"
	"yatube/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var postCols = []string{"id", "text", "pub_date", "author_id", "group_id", "image", "username", "slug", "title", "comments"}

func TestGetUserByUsernameNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "password_hash", "created_at"}))

	_, err := s.GetUserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMapsUniqueViolation(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("sarah@example.com", "sarah", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateUser(context.Background(), models.User{Email: "sarah@example.com", Username: "sarah", PasswordHash: "hash"})
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.ErrorIs(t, err, store.ErrUsernameConflict)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("sarah@example.com", "sarah2", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_users_email_lower"})

	_, err = s.CreateUser(context.Background(), models.User{Email: "sarah@example.com", Username: "sarah2", PasswordHash: "hash"})
	assert.ErrorIs(t, err, store.ErrEmailConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFollowIsGetOrCreate(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, author_id) DO NOTHING")).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, author_id) DO NOTHING")).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := s.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Follow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.Follow(context.Background(), 3, 3)
	assert.ErrorIs(t, err, store.ErrSelfFollow)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnfollowMissingEdgeIsNotAnError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM follows WHERE user_id = $1 AND author_id = $2")).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := s.Unfollow(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPostsFollowFeed(t *testing.T) {
	s, mock := newMock(t)
	pub := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	feedQuery := regexp.QuoteMeta("WHERE f.user_id = $1)") + ".*" +
		regexp.QuoteMeta("ORDER BY p.pub_date DESC, p.id DESC LIMIT $2 OFFSET $3")
	mock.ExpectQuery(feedQuery).
		WithArgs(int64(7), 5, 5).
		WillReturnRows(sqlmock.NewRows(postCols).
			AddRow(int64(11), "My first post", pub, int64(2), int64(4), "", "following", "cats", "Cats", int64(3)).
			AddRow(int64(10), "older", pub.Add(-time.Hour), int64(2), nil, "posts/a.png", "following", "", "", int64(0)))

	posts, err := s.ListPosts(context.Background(), store.PostQuery{FollowerID: 7, Limit: 5, Offset: 5})
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "My first post", posts[0].Text)
	require.NotNil(t, posts[0].GroupID)
	assert.Equal(t, int64(4), *posts[0].GroupID)
	assert.Equal(t, 3, posts[0].CommentCount)
	assert.Nil(t, posts[1].GroupID)
	assert.Equal(t, "posts/a.png", posts[1].Image)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountPostsByAuthorAndGroup(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM posts p WHERE p.author_id = $1 AND p.group_id = $2")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.CountPosts(context.Background(), store.PostQuery{AuthorID: 1, GroupID: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePostMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET text = $2, group_id = $3, image = $4")).
		WithArgs(int64(9), "new", nil, "").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := s.UpdatePost(context.Background(), models.Post{ID: 9, Text: "new"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteGroupDetachesPostsInTx(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE posts SET group_id = NULL WHERE group_id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM post_groups WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteGroup(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUserMissingRollsBack(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE user_id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM follows WHERE user_id = $1 OR author_id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comments WHERE author_id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM posts WHERE author_id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.DeleteUser(context.Background(), 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
