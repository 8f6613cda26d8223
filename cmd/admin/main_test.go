package main

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatube/internal/cache"
	"yatube/internal/media"
	"yatube/internal/models"
	"yatube/internal/store"
	"yatube/internal/store/memory"
)

func newAdmin(t *testing.T) (*admin, *memory.Store, *bytes.Buffer) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	out := &bytes.Buffer{}
	return &admin{st: st, cache: cache.NewMemory(), media: media.NewDisk(t.TempDir(), "/media/"), out: out, log: log}, st, out
}

func TestGroupCommands(t *testing.T) {
	a, st, out := newAdmin(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, []string{"create-group", "-title", "Cats", "-slug", "cats"}))
	assert.Contains(t, out.String(), "/group/cats/")

	g, err := st.GetGroupBySlug(ctx, "cats")
	require.NoError(t, err)
	u, err := st.CreateUser(ctx, models.User{Username: "sarah", Email: "s@x.io"})
	require.NoError(t, err)
	p, err := st.CreatePost(ctx, models.Post{Text: "meow", AuthorID: u.ID, GroupID: &g.ID})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, a.run(ctx, []string{"list-groups"}))
	assert.Contains(t, out.String(), "cats")

	require.NoError(t, a.run(ctx, []string{"delete-group", "-slug", "cats"}))
	got, err := st.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)

	assert.ErrorIs(t, a.run(ctx, []string{"delete-group", "-slug", "cats"}), store.ErrNotFound)
	assert.Error(t, a.run(ctx, []string{"create-group", "-slug", "x"}))
}

func TestDeleteUserCascades(t *testing.T) {
	a, st, out := newAdmin(t)
	ctx := context.Background()

	sarah, err := st.CreateUser(ctx, models.User{Username: "sarah", Email: "s@x.io"})
	require.NoError(t, err)
	john, err := st.CreateUser(ctx, models.User{Username: "john", Email: "j@x.io"})
	require.NoError(t, err)
	p, err := st.CreatePost(ctx, models.Post{Text: "bye", AuthorID: sarah.ID})
	require.NoError(t, err)
	_, err = st.CreateComment(ctx, models.Comment{PostID: p.ID, AuthorID: john.ID, Text: "hi"})
	require.NoError(t, err)
	_, err = st.Follow(ctx, john.ID, sarah.ID)
	require.NoError(t, err)

	require.NoError(t, a.run(ctx, []string{"delete-user", "-username", "sarah"}))
	assert.Contains(t, out.String(), "1 posts")

	n, _ := st.CountPosts(ctx, store.PostQuery{})
	assert.Zero(t, n)
	n, _ = st.CountComments(ctx)
	assert.Zero(t, n)
	n, _ = st.CountFollows(ctx)
	assert.Zero(t, n)
}

func TestDeletePost(t *testing.T) {
	a, st, _ := newAdmin(t)
	ctx := context.Background()

	u, err := st.CreateUser(ctx, models.User{Username: "sarah", Email: "s@x.io"})
	require.NoError(t, err)
	p, err := st.CreatePost(ctx, models.Post{Text: "x", AuthorID: u.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, a.run(ctx, []string{"delete-post", "-id", "999"}), store.ErrNotFound)

	require.NoError(t, a.run(ctx, []string{"delete-post", "-id", strconv.FormatInt(p.ID, 10)}))
	_, err = st.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearCache(t *testing.T) {
	a, _, out := newAdmin(t)
	ctx := context.Background()
	c := a.cache.(*cache.Memory)
	require.NoError(t, c.Set(ctx, "page:0:/?", cache.Entry{Body: []byte("x")}, time.Minute))

	require.NoError(t, a.run(ctx, []string{"clear-cache"}))
	assert.Zero(t, c.Len())
	assert.Contains(t, out.String(), "cleared")

	assert.Error(t, a.run(ctx, []string{"frobnicate"}))
	assert.Error(t, a.run(ctx, nil))
}

func TestExecuteNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	assert.Equal(t, 2, execute(nil))
	assert.Equal(t, 2, execute([]string{"list-groups"}))

	a, _, out := newAdmin(t)
	require.Error(t, a.run(context.Background(), []string{"help"}))
	assert.Contains(t, out.String(), "SEED_GROUPS")
}
