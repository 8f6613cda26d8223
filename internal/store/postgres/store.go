package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"yatube/internal/models"
	"yatube/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// --- users -------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, u.Email, u.Username, u.PasswordHash).Scan(&u.ID, &u.CreatedAt)
	if isUniqueErr(err) {
		if uniqueConstraint(err) == "idx_users_email_lower" {
			return models.User{}, fmt.Errorf("%q: %w", u.Email, store.ErrEmailConflict)
		}
		return models.User{}, fmt.Errorf("%q: %w", u.Username, store.ErrUsernameConflict)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users WHERE id = $1
	`, id)
	return scanUser(row, fmt.Sprintf("user %d", id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users WHERE username = $1
	`, username)
	return scanUser(row, fmt.Sprintf("user %q", username))
}

func scanUser(row *sql.Row, what string) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", what, err)
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		steps := []string{
			`DELETE FROM sessions WHERE user_id = $1`,
			`DELETE FROM follows WHERE user_id = $1 OR author_id = $1`,
			`DELETE FROM comments WHERE author_id = $1 OR post_id IN (SELECT id FROM posts WHERE author_id = $1)`,
			`DELETE FROM posts WHERE author_id = $1`,
		}
		for _, q := range steps {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete user %d: %w", id, err)
			}
		}
		return execOne(ctx, tx, fmt.Sprintf("user %d", id), `DELETE FROM users WHERE id = $1`, id)
	})
}

// --- sessions ----------------------------------------------------------------

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, sess.ID, sess.UserID, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (models.Session, error) {
	var sess models.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, expires_at, created_at
		FROM sessions WHERE id = $1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, fmt.Errorf("session: %w", store.ErrNotFound)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("session: %w", err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (s *Store) DeleteUserSessions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- groups ------------------------------------------------------------------

func (s *Store) CreateGroup(ctx context.Context, g models.Group) (models.Group, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO post_groups (title, slug, description)
		VALUES ($1, $2, $3)
		RETURNING id
	`, g.Title, g.Slug, g.Description).Scan(&g.ID)
	if isUniqueErr(err) {
		return models.Group{}, fmt.Errorf("group %q: %w", g.Slug, store.ErrConflict)
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (models.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, slug, description FROM post_groups WHERE id = $1
	`, id)
	return scanGroup(row, fmt.Sprintf("group %d", id))
}

func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (models.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, slug, description FROM post_groups WHERE slug = $1
	`, slug)
	return scanGroup(row, fmt.Sprintf("group %q", slug))
}

func scanGroup(row *sql.Row, what string) (models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Title, &g.Slug, &g.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	if err != nil {
		return models.Group{}, fmt.Errorf("%s: %w", what, err)
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, slug, description FROM post_groups ORDER BY title
	`)
	if err != nil {
		return nil, fmt.Errorf("groups query: %w", err)
	}
	defer rows.Close()

	var out []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Title, &g.Slug, &g.Description); err != nil {
			return nil, fmt.Errorf("groups scan: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE posts SET group_id = NULL WHERE group_id = $1`, id); err != nil {
			return fmt.Errorf("detach group %d posts: %w", id, err)
		}
		return execOne(ctx, tx, fmt.Sprintf("group %d", id), `DELETE FROM post_groups WHERE id = $1`, id)
	})
}

// --- posts -------------------------------------------------------------------

const postColumns = `
	p.id, p.text, p.pub_date, p.author_id, p.group_id, p.image,
	u.username, COALESCE(g.slug, ''), COALESCE(g.title, ''),
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id)
FROM posts p
JOIN users u ON u.id = p.author_id
LEFT JOIN post_groups g ON g.id = p.group_id
`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(sc scanner) (models.Post, error) {
	var (
		p       models.Post
		groupID sql.NullInt64
	)
	if err := sc.Scan(&p.ID, &p.Text, &p.PubDate, &p.AuthorID, &groupID, &p.Image,
		&p.Author, &p.GroupSlug, &p.GroupTitle, &p.CommentCount); err != nil {
		return models.Post{}, err
	}
	if groupID.Valid {
		id := groupID.Int64
		p.GroupID = &id
	}
	return p, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (s *Store) CreatePost(ctx context.Context, p models.Post) (models.Post, error) {
	if p.PubDate.IsZero() {
		p.PubDate = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (text, pub_date, author_id, group_id, image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, p.Text, p.PubDate, p.AuthorID, nullID(p.GroupID), p.Image).Scan(&id)
	if err != nil {
		return models.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return s.GetPost(ctx, id)
}

func (s *Store) UpdatePost(ctx context.Context, p models.Post) (models.Post, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET text = $2, group_id = $3, image = $4
		WHERE id = $1
	`, p.ID, p.Text, nullID(p.GroupID), p.Image)
	if err != nil {
		return models.Post{}, fmt.Errorf("update post %d: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Post{}, fmt.Errorf("post %d: %w", p.ID, store.ErrNotFound)
	}
	return s.GetPost(ctx, p.ID)
}

func (s *Store) GetPost(ctx context.Context, id int64) (models.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, `SELECT `+postColumns+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, fmt.Errorf("post %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("post %d: %w", id, err)
	}
	return p, nil
}

// postFilter renders the WHERE clause for q, numbering placeholders from $1.
func postFilter(q store.PostQuery) (string, []any) {
	var (
		args  []any
		conds []string
	)
	nextArg := func() string { return fmt.Sprintf("$%d", len(args)+1) }

	if q.AuthorID != 0 {
		conds = append(conds, "p.author_id = "+nextArg())
		args = append(args, q.AuthorID)
	}
	if q.GroupID != 0 {
		conds = append(conds, "p.group_id = "+nextArg())
		args = append(args, q.GroupID)
	}
	if q.FollowerID != 0 {
		conds = append(conds, "p.author_id IN (SELECT f.author_id FROM follows f WHERE f.user_id = "+nextArg()+")")
		args = append(args, q.FollowerID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) ListPosts(ctx context.Context, q store.PostQuery) ([]models.Post, error) {
	where, args := postFilter(q)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + postColumns)
	sb.WriteString(where)
	sb.WriteString(` ORDER BY p.pub_date DESC, p.id DESC`)
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)+1))
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)+1))
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("posts query: %w", err)
	}
	defer rows.Close()

	var out []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("posts scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("posts rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountPosts(ctx context.Context, q store.PostQuery) (int, error) {
	where, args := postFilter(q)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts p`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("delete post %d comments: %w", id, err)
		}
		return execOne(ctx, tx, fmt.Sprintf("post %d", id), `DELETE FROM posts WHERE id = $1`, id)
	})
}

// --- comments ----------------------------------------------------------------

func (s *Store) CreateComment(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO comments (post_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, (SELECT username FROM users WHERE id = $2)
	`, c.PostID, c.AuthorID, c.Text, c.CreatedAt).Scan(&c.ID, &c.Author)
	if err != nil {
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.post_id, c.author_id, c.text, c.created_at, u.username
		FROM comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.post_id = $1
		ORDER BY c.created_at ASC, c.id ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("comments query: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.Author); err != nil {
			return nil, fmt.Errorf("comments scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountComments(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM comments`)
}

// --- follows -----------------------------------------------------------------

func (s *Store) Follow(ctx context.Context, userID, authorID int64) (bool, error) {
	if userID == authorID {
		return false, store.ErrSelfFollow
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO follows (user_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, author_id) DO NOTHING
	`, userID, authorID)
	if err != nil {
		return false, fmt.Errorf("insert follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) Unfollow(ctx context.Context, userID, authorID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM follows WHERE user_id = $1 AND author_id = $2`, userID, authorID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) IsFollowing(ctx context.Context, userID, authorID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM follows WHERE user_id = $1 AND author_id = $2)
	`, userID, authorID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("follow exists: %w", err)
	}
	return ok, nil
}

func (s *Store) CountFollows(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows`)
}

func (s *Store) CountFollowers(ctx context.Context, authorID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE author_id = $1`, authorID)
}

func (s *Store) CountFollowing(ctx context.Context, userID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM follows WHERE user_id = $1`, userID)
}

// --- helpers -----------------------------------------------------------------

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func execOne(ctx context.Context, tx *sql.Tx, what, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", what, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

func isUniqueErr(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
