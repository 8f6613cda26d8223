package models

import "time"

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session is no longer valid at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

type Group struct {
	ID          int64
	Title       string
	Slug        string
	Description string
}

type Post struct {
	ID       int64
	Text     string
	PubDate  time.Time
	AuthorID int64
	GroupID  *int64
	Image    string // media key, empty when the post has no image

	// filled by list/get queries
	Author       string
	GroupSlug    string
	GroupTitle   string
	CommentCount int
}

// InGroup reports whether the post is tagged to group id.
func (p Post) InGroup(id int64) bool {
	return p.GroupID != nil && *p.GroupID == id
}

type Comment struct {
	ID        int64
	PostID    int64
	AuthorID  int64
	Text      string
	CreatedAt time.Time
	Author    string
}

type Follow struct {
	ID       int64
	UserID   int64 // follower
	AuthorID int64 // followed
}
