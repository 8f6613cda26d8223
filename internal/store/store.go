// Package store defines the persistence contracts of the blog. Two
// implementations exist: postgres (production) and memory (tests, local runs).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yatube/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
	ErrSelfFollow = errors.New("users cannot follow themselves")

	// Both wrap ErrConflict.
	ErrUsernameConflict = fmt.Errorf("username %w", ErrConflict)
	ErrEmailConflict    = fmt.Errorf("email %w", ErrConflict)
)

// PostQuery selects posts for listings. Zero fields do not filter.
// Results are always ordered newest first.
type PostQuery struct {
	AuthorID   int64
	GroupID    int64
	FollowerID int64 // posts by authors this user follows
	Limit      int
	Offset     int
}

type UserStore interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUser(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	// DeleteUser removes the user with their sessions, follow edges in both
	// directions, comments and posts (including comments on those posts).
	DeleteUser(ctx context.Context, id int64) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, id string) (models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID int64) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g models.Group) (models.Group, error)
	GetGroup(ctx context.Context, id int64) (models.Group, error)
	GetGroupBySlug(ctx context.Context, slug string) (models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	// DeleteGroup removes the group and detaches its posts (group set to null).
	DeleteGroup(ctx context.Context, id int64) error
}

type PostStore interface {
	CreatePost(ctx context.Context, p models.Post) (models.Post, error)
	// UpdatePost changes text, group and image. PubDate and author are kept.
	UpdatePost(ctx context.Context, p models.Post) (models.Post, error)
	GetPost(ctx context.Context, id int64) (models.Post, error)
	ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error)
	CountPosts(ctx context.Context, q PostQuery) (int, error)
	// DeletePost removes the post and its comments.
	DeletePost(ctx context.Context, id int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, c models.Comment) (models.Comment, error)
	ListComments(ctx context.Context, postID int64) ([]models.Comment, error)
	CountComments(ctx context.Context) (int, error)
}

type FollowStore interface {
	// Follow creates the (user, author) edge unless it exists already.
	Follow(ctx context.Context, userID, authorID int64) (created bool, err error)
	// Unfollow removes the edge; removing a missing edge is not an error.
	Unfollow(ctx context.Context, userID, authorID int64) (removed bool, err error)
	IsFollowing(ctx context.Context, userID, authorID int64) (bool, error)
	CountFollows(ctx context.Context) (int, error)
	CountFollowers(ctx context.Context, authorID int64) (int, error)
	CountFollowing(ctx context.Context, userID int64) (int, error)
}

// Store is the full persistence surface used by the web layer.
type Store interface {
	UserStore
	SessionStore
	GroupStore
	PostStore
	CommentStore
	FollowStore
	Close() error
}
