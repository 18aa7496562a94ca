package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsim/internal/feed"
	"github.com/roach88/feedsim/internal/testutil"
)

func TestLoadFeed_ReplacesFeedInBackendOrder(t *testing.T) {
	fb := testutil.NewFakeBackend(
		feed.Post{ID: "p1", Bot: "Clara"},
		feed.Post{ID: "p2", Bot: "Tom"},
	)
	e := startEngine(t, fb)
	assert.Equal(t, []string{"p1", "p2"}, e.posts.IDs())

	require.NoError(t, fb.DeletePost(context.Background(), "p1"))
	fb.SetServerPost(feed.Post{ID: "p3", Bot: "Luna"})

	posts, err := e.LoadFeed(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []string{"p2", "p3"}, e.posts.IDs())
}

func TestLoadFeed_FailureKeepsFeed(t *testing.T) {
	fb := testutil.NewFakeBackend(feed.Post{ID: "p1", Bot: "Clara"})
	e := startEngine(t, fb)
	fb.FailNext("ListPosts", assert.AnError)

	_, err := e.LoadFeed(context.Background())
	assert.True(t, IsNetworkFailure(err))
	assert.Equal(t, []string{"p1"}, e.posts.IDs())
}

func TestLoadFeed_UndecodableBodyIsMalformed(t *testing.T) {
	fb := testutil.NewFakeBackend(feed.Post{ID: "p1", Bot: "Clara"})
	e := startEngine(t, fb)
	fb.FailNext("ListPosts", fmt.Errorf("parsing response from GET /posts: %w", ErrMalformedBody))

	_, err := e.LoadFeed(context.Background())
	assert.Equal(t, ErrCodeMalformedResponse, CodeOf(err))
	assert.False(t, IsNetworkFailure(err))
	assert.Equal(t, []string{"p1"}, e.posts.IDs())
}

func TestLoadFeed_KeepsNewerLocalChanges(t *testing.T) {
	fb := testutil.NewFakeBackend(feed.Post{ID: "p1", Bot: "Clara"})
	e := startEngine(t, fb)
	ctx := context.Background()

	release := fb.Block("ListPosts")
	done := make(chan error, 1)
	go func() {
		_, err := e.LoadFeed(ctx)
		done <- err
	}()
	waitForCalls(t, fb, "ListPosts", 2)

	_, err := e.Toggle(ctx, "p1", "me", "🔥")
	require.NoError(t, err)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, map[string]int{"🔥": 1}, mustPost(t, e, "p1").Reactions)
}

func TestCreatePost(t *testing.T) {
	fb := testutil.NewFakeBackend()
	e := startEngine(t, fb)

	p, err := e.CreatePost(context.Background(), feed.NewPost{Bot: "Clara", Text: " Hello feed "})
	require.NoError(t, err)

	assert.Equal(t, "srv-1", p.ID)
	assert.Equal(t, "Hello feed", p.Text)
	assert.Equal(t, []string{"srv-1"}, e.posts.IDs())

	_, err = e.CreatePost(context.Background(), feed.NewPost{Bot: "", Text: "x"})
	assert.True(t, IsInvalidState(err))
}

func TestDeletePost(t *testing.T) {
	fb := testutil.NewFakeBackend(feed.Post{ID: "p1", Bot: "Clara"}, feed.Post{ID: "p2", Bot: "Tom"})
	e := startEngine(t, fb)
	ctx := context.Background()

	require.NoError(t, e.DeletePost(ctx, "p1"))
	assert.Equal(t, []string{"p2"}, e.posts.IDs())

	err := e.DeletePost(ctx, "p1")
	assert.True(t, IsNotFound(err))
}

func TestDeletePost_NotResurrectedByInflightRefresh(t *testing.T) {
	fb := testutil.NewFakeBackend(feed.Post{ID: "p1", Bot: "Clara"})
	e := startEngine(t, fb)
	ctx := context.Background()

	release := fb.Block("GetPost")
	done := make(chan error, 1)
	go func() {
		_, err := e.Refresh(ctx, "p1")
		done <- err
	}()
	waitForCalls(t, fb, "GetPost", 1)

	require.NoError(t, e.DeletePost(ctx, "p1"))
	release()

	err := <-done
	assert.True(t, IsNotFound(err))
	assert.Empty(t, e.posts.IDs())
}

func TestGenerateAndPublish(t *testing.T) {
	fb := testutil.NewFakeBackend()
	e := startEngine(t, fb)

	pub, err := e.GenerateAndPublish(context.Background(), GenerateOptions{Bot: "Aisha", Topic: "rust", GenerateImage: true})
	require.NoError(t, err)

	assert.Equal(t, "Friendly-Tech", pub.Generated.Strategy)
	assert.Equal(t, "Aisha writes about rust", pub.Post.Text)
	assert.Equal(t, "/media/Aisha.png", pub.Post.Image)
	assert.Equal(t, []string{pub.Post.ID}, e.posts.IDs())

	calls := fb.Calls("Generate")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"Aisha", "rust"}, calls[0].Args)
}

func TestGenerateAndPublish_RandomPersona(t *testing.T) {
	fb := testutil.NewFakeBackend()
	fb.SetBots(feed.Persona{Name: "Clara"}, feed.Persona{Name: "Tom"}, feed.Persona{Name: "Luna"})
	e := startEngine(t, fb, WithRand(rand.New(rand.NewPCG(1, 2))))

	pub, err := e.GenerateAndPublish(context.Background(), GenerateOptions{Topic: "cats"})
	require.NoError(t, err)
	assert.Contains(t, []string{"Clara", "Tom", "Luna"}, pub.Post.Bot)
}

func TestGenerateAndPublish_NoPersonas(t *testing.T) {
	fb := testutil.NewFakeBackend()
	e := startEngine(t, fb)

	_, err := e.GenerateAndPublish(context.Background(), GenerateOptions{})
	assert.True(t, IsInvalidState(err))
	assert.Empty(t, fb.Calls("Generate"))
}

func TestGenerateAndPublish_GenerationFailure(t *testing.T) {
	fb := testutil.NewFakeBackend()
	e := startEngine(t, fb)
	fb.FailNext("Generate", assert.AnError)

	_, err := e.GenerateAndPublish(context.Background(), GenerateOptions{Bot: "Tom"})
	assert.True(t, IsNetworkFailure(err))
	assert.Empty(t, fb.Calls("CreatePost"))
}

func TestExplain_PassesThrough(t *testing.T) {
	fb := testutil.NewFakeBackend()
	e := startEngine(t, fb)

	exp, err := e.Explain(context.Background(), "Max", "tokens")
	require.NoError(t, err)
	assert.Equal(t, "LIKE", exp.Decision)
	assert.Equal(t, []feed.TokenWeight{{Token: "tokens", Weight: 1}}, exp.Tokens)

	_, err = e.Explain(context.Background(), "Max", " ")
	assert.True(t, IsInvalidState(err))
}
