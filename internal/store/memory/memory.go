package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"yatube/internal/models"
	"yatube/internal/store"
)

// Store is an in-memory implementation of store.Store. It is safe for
// concurrent use and is intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	now      func() time.Time
	users    map[int64]models.User
	sessions map[string]models.Session
	groups   map[int64]models.Group
	posts    map[int64]models.Post
	comments map[int64]models.Comment
	follows  map[int64]models.Follow
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:   1,
		now:      time.Now,
		users:    make(map[int64]models.User),
		sessions: make(map[string]models.Session),
		groups:   make(map[int64]models.Group),
		posts:    make(map[int64]models.Post),
		comments: make(map[int64]models.Comment),
		follows:  make(map[int64]models.Follow),
	}
}

// SetClock replaces the time source used for creation timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Close() error { return nil }

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Users -----------------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return models.User{}, fmt.Errorf("%q: %w", u.Username, store.ErrUsernameConflict)
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return models.User{}, fmt.Errorf("%q: %w", u.Email, store.ErrEmailConflict)
		}
	}
	u.ID = s.nextIDLocked()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	for sid, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, sid)
		}
	}
	for fid, f := range s.follows {
		if f.UserID == id || f.AuthorID == id {
			delete(s.follows, fid)
		}
	}
	for cid, c := range s.comments {
		if c.AuthorID == id {
			delete(s.comments, cid)
		}
	}
	for pid, p := range s.posts {
		if p.AuthorID == id {
			s.deletePostLocked(pid)
		}
	}
	delete(s.users, id)
	return nil
}

// Sessions --------------------------------------------------------------------

func (s *Store) CreateSession(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return fmt.Errorf("session user %d: %w", sess.UserID, store.ErrNotFound)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.now().UTC()
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("session: %w", store.ErrNotFound)
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) DeleteUserSessions(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sid, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, sid)
		}
	}
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for sid, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, sid)
			n++
		}
	}
	return n, nil
}

// Groups ----------------------------------------------------------------------

func (s *Store) CreateGroup(_ context.Context, g models.Group) (models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.groups {
		if existing.Slug == g.Slug {
			return models.Group{}, fmt.Errorf("group %q: %w", g.Slug, store.ErrConflict)
		}
	}
	g.ID = s.nextIDLocked()
	s.groups[g.ID] = g
	return g, nil
}

func (s *Store) GetGroup(_ context.Context, id int64) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return models.Group{}, fmt.Errorf("group %d: %w", id, store.ErrNotFound)
	}
	return g, nil
}

func (s *Store) GetGroupBySlug(_ context.Context, slug string) (models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.Slug == slug {
			return g, nil
		}
	}
	return models.Group{}, fmt.Errorf("group %q: %w", slug, store.ErrNotFound)
}

func (s *Store) ListGroups(_ context.Context) ([]models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *Store) DeleteGroup(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[id]; !ok {
		return fmt.Errorf("group %d: %w", id, store.ErrNotFound)
	}
	for pid, p := range s.posts {
		if p.InGroup(id) {
			p.GroupID = nil
			s.posts[pid] = p
		}
	}
	delete(s.groups, id)
	return nil
}

// Posts -----------------------------------------------------------------------

func (s *Store) CreatePost(_ context.Context, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.AuthorID]; !ok {
		return models.Post{}, fmt.Errorf("post author %d: %w", p.AuthorID, store.ErrNotFound)
	}
	if p.GroupID != nil {
		if _, ok := s.groups[*p.GroupID]; !ok {
			return models.Post{}, fmt.Errorf("post group %d: %w", *p.GroupID, store.ErrNotFound)
		}
	}
	p.ID = s.nextIDLocked()
	if p.PubDate.IsZero() {
		p.PubDate = s.now().UTC()
	}
	p.GroupID = cloneID(p.GroupID)
	s.posts[p.ID] = p
	return s.hydrateLocked(p), nil
}

func (s *Store) UpdatePost(_ context.Context, p models.Post) (models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.posts[p.ID]
	if !ok {
		return models.Post{}, fmt.Errorf("post %d: %w", p.ID, store.ErrNotFound)
	}
	if p.GroupID != nil {
		if _, ok := s.groups[*p.GroupID]; !ok {
			return models.Post{}, fmt.Errorf("post group %d: %w", *p.GroupID, store.ErrNotFound)
		}
	}
	original.Text = p.Text
	original.GroupID = cloneID(p.GroupID)
	original.Image = p.Image
	s.posts[p.ID] = original
	return s.hydrateLocked(original), nil
}

func (s *Store) GetPost(_ context.Context, id int64) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return models.Post{}, fmt.Errorf("post %d: %w", id, store.ErrNotFound)
	}
	return s.hydrateLocked(p), nil
}

func (s *Store) ListPosts(_ context.Context, q store.PostQuery) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.matchLocked(q)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]models.Post, 0, len(matched))
	for _, p := range matched {
		out = append(out, s.hydrateLocked(p))
	}
	return out, nil
}

func (s *Store) CountPosts(_ context.Context, q store.PostQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchLocked(q)), nil
}

func (s *Store) DeletePost(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return fmt.Errorf("post %d: %w", id, store.ErrNotFound)
	}
	s.deletePostLocked(id)
	return nil
}

func (s *Store) deletePostLocked(id int64) {
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	delete(s.posts, id)
}

func (s *Store) matchLocked(q store.PostQuery) []models.Post {
	var followed map[int64]bool
	if q.FollowerID != 0 {
		followed = make(map[int64]bool)
		for _, f := range s.follows {
			if f.UserID == q.FollowerID {
				followed[f.AuthorID] = true
			}
		}
	}

	var out []models.Post
	for _, p := range s.posts {
		if q.AuthorID != 0 && p.AuthorID != q.AuthorID {
			continue
		}
		if q.GroupID != 0 && !p.InGroup(q.GroupID) {
			continue
		}
		if followed != nil && !followed[p.AuthorID] {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PubDate.Equal(out[j].PubDate) {
			return out[i].PubDate.After(out[j].PubDate)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) hydrateLocked(p models.Post) models.Post {
	p.GroupID = cloneID(p.GroupID)
	p.Author = s.users[p.AuthorID].Username
	p.GroupSlug, p.GroupTitle = "", ""
	if p.GroupID != nil {
		g := s.groups[*p.GroupID]
		p.GroupSlug, p.GroupTitle = g.Slug, g.Title
	}
	p.CommentCount = 0
	for _, c := range s.comments {
		if c.PostID == p.ID {
			p.CommentCount++
		}
	}
	return p
}

// Comments --------------------------------------------------------------------

func (s *Store) CreateComment(_ context.Context, c models.Comment) (models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[c.PostID]; !ok {
		return models.Comment{}, fmt.Errorf("comment post %d: %w", c.PostID, store.ErrNotFound)
	}
	author, ok := s.users[c.AuthorID]
	if !ok {
		return models.Comment{}, fmt.Errorf("comment author %d: %w", c.AuthorID, store.ErrNotFound)
	}
	c.ID = s.nextIDLocked()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	c.Author = author.Username
	s.comments[c.ID] = c
	return c, nil
}

func (s *Store) ListComments(_ context.Context, postID int64) ([]models.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Comment
	for _, c := range s.comments {
		if c.PostID == postID {
			c.Author = s.users[c.AuthorID].Username
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) CountComments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comments), nil
}

// Follows ---------------------------------------------------------------------

func (s *Store) Follow(_ context.Context, userID, authorID int64) (bool, error) {
	if userID == authorID {
		return false, store.ErrSelfFollow
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return false, fmt.Errorf("follower %d: %w", userID, store.ErrNotFound)
	}
	if _, ok := s.users[authorID]; !ok {
		return false, fmt.Errorf("author %d: %w", authorID, store.ErrNotFound)
	}
	if _, ok := s.findFollowLocked(userID, authorID); ok {
		return false, nil
	}
	id := s.nextIDLocked()
	s.follows[id] = models.Follow{ID: id, UserID: userID, AuthorID: authorID}
	return true, nil
}

func (s *Store) Unfollow(_ context.Context, userID, authorID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.findFollowLocked(userID, authorID)
	if !ok {
		return false, nil
	}
	delete(s.follows, id)
	return true, nil
}

func (s *Store) IsFollowing(_ context.Context, userID, authorID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.findFollowLocked(userID, authorID)
	return ok, nil
}

func (s *Store) CountFollows(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.follows), nil
}

func (s *Store) CountFollowers(_ context.Context, authorID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, f := range s.follows {
		if f.AuthorID == authorID {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountFollowing(_ context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, f := range s.follows {
		if f.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) findFollowLocked(userID, authorID int64) (int64, bool) {
	for id, f := range s.follows {
		if f.UserID == userID && f.AuthorID == authorID {
			return id, true
		}
	}
	return 0, false
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
