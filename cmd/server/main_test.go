package main

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatube/internal/store/memory"
)

func TestSeedGroups(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	ctx := context.Background()

	require.NoError(t, seedGroups(ctx, st, "cats: Cats ; dogs:Dogs and puppies;", log))
	groups, err := st.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	g, err := st.GetGroupBySlug(ctx, "dogs")
	require.NoError(t, err)
	assert.Equal(t, "Dogs and puppies", g.Title)

	require.NoError(t, seedGroups(ctx, st, "cats:Cats", log), "existing groups are kept")
	groups, err = st.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	require.NoError(t, seedGroups(ctx, st, "", log))
	assert.Error(t, seedGroups(ctx, st, "birds", log))
	assert.Error(t, seedGroups(ctx, st, ":Nameless", log))
}
