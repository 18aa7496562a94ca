package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedsim/internal/config"
	"github.com/roach88/feedsim/internal/feed"
	"github.com/roach88/feedsim/internal/simserver"
	"github.com/roach88/feedsim/internal/store"
	"github.com/roach88/feedsim/internal/testutil"
)

// testEnv runs CLI commands against an in-process reference backend that
// keeps its state between commands.
type testEnv struct {
	t   *testing.T
	srv *simserver.Server
}

func newTestEnv(t *testing.T, opts ...simserver.Option) *testEnv {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := simserver.New(st, append([]simserver.Option{
		simserver.WithIDGenerator(testutil.NewSequentialGenerator("id")),
		simserver.WithLogger(logger),
	}, opts...)...)
	require.NoError(t, err)
	return &testEnv{t: t, srv: srv}
}

// run executes one command line and returns its stdout.
func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	opts := &RootOptions{
		Transport:     e.srv.Transport(),
		FlowGenerator: testutil.NewSequentialGenerator("flow"),
		cfg:           config.Default(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// runJSON executes a command with --format json and decodes the payload
// into data.
func (e *testEnv) runJSON(data interface{}, args ...string) CLIResponse {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	require.NoError(e.t, err, out)

	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), out)
	if data != nil {
		require.NoError(e.t, json.Unmarshal(resp.Data, data), out)
	}
	return CLIResponse{Status: resp.Status}
}

func TestPostCommands(t *testing.T) {
	env := newTestEnv(t)

	var created feed.Post
	resp := env.runJSON(&created, "post", "create", "Clara", "Sunset over the bay")
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "id-1", created.ID)
	assert.Equal(t, "Clara", created.Bot)
	assert.Equal(t, "Sunset over the bay", created.Text)

	out, err := env.run("feed")
	require.NoError(t, err)
	assert.Contains(t, out, "id-1  Clara  👍0 👎0")
	assert.Contains(t, out, "  Sunset over the bay")

	out, err = env.run("post", "delete", "id-1")
	require.NoError(t, err)
	assert.Equal(t, "post id-1 deleted\n", out)

	out, err = env.run("feed")
	require.NoError(t, err)
	assert.Equal(t, "Feed is empty.\n", out)
}

func TestPostGenerate(t *testing.T) {
	env := newTestEnv(t)

	var pub struct {
		Strategy string    `json:"strategy"`
		Post     feed.Post `json:"post"`
	}
	env.runJSON(&pub, "post", "generate", "--bot", "Luna", "--topic", "stars")
	assert.NotEmpty(t, pub.Strategy)
	assert.Equal(t, "Luna", pub.Post.Bot)
	assert.NotEmpty(t, pub.Post.Text)
}

func TestReactCommand(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("post", "create", "Clara", "hello")
	require.NoError(t, err)

	out, err := env.run("react", "id-1", "Tom", "👍")
	require.NoError(t, err)
	assert.Equal(t, "Tom reacted 👍 on id-1\n", out)

	out, err = env.run("react", "id-1", "Tom", "🔥")
	require.NoError(t, err)
	assert.Equal(t, "Tom changed 👍 to 🔥 on id-1\n", out)

	out, err = env.run("react", "id-1", "Tom", "🔥")
	require.NoError(t, err)
	assert.Equal(t, "Tom removed 🔥 from id-1\n", out)
}

func TestReactCommand_Errors(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run("--format", "json", "react", "missing", "Tom", "👍")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "react failed", resp.Error.Message)
}

func TestCommentCommands(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("post", "create", "Clara", "hello")
	require.NoError(t, err)

	out, err := env.run("comment", "id-1", "Tom", "Nice shot")
	require.NoError(t, err)
	assert.Equal(t, "comment id-2 by Tom on id-1: Nice shot\n", out)

	out, err = env.run("comment", "--local", "id-1", "Aisha", "draft")
	require.NoError(t, err)
	assert.Equal(t, "local comment by Aisha on id-1 (not sent)\n", out)

	out, err = env.run("reply", "id-1", "id-2", "Clara", "Thanks")
	require.NoError(t, err)
	assert.Equal(t, "Clara replied to id-2 on id-1: Thanks\n", out)

	var post feed.Post
	env.runJSON(&post, "feed", "id-1")
	require.Len(t, post.Comments, 1, "the local comment lives only in its own session")
	assert.Equal(t, "id-2", post.Comments[0].ID)
	require.Len(t, post.Comments[0].Replies, 1)
	assert.Equal(t, "Thanks", post.Comments[0].Replies[0].Text)

	out, err = env.run("delete-comment", "id-1", "0")
	require.NoError(t, err)
	assert.Equal(t, "comment 0 deleted from id-1\n", out)

	env.runJSON(&post, "feed", "id-1")
	assert.Empty(t, post.Comments)
}

func TestDeleteCommentCommand_Errors(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("post", "create", "Clara", "hello")
	require.NoError(t, err)

	_, err = env.run("delete-comment", "id-1", "first")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid index")

	_, err = env.run("delete-comment", "id-1", "3")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "INVALID_STATE")
}

func TestBotReplyAndOwnerReply(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run("post", "create", "Clara", "hello")
	require.NoError(t, err)

	var c feed.Comment
	env.runJSON(&c, "bot-reply", "id-1", "Aisha")
	assert.Equal(t, "id-2", c.ID)
	assert.Equal(t, "Aisha", c.Bot)

	out, err := env.run("owner-reply", "id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1: owner replied to 1 comments\n", out)

	var report struct {
		RepliedCount int            `json:"replied_count"`
		Applied      bool           `json:"applied"`
		Comments     []feed.Comment `json:"comments"`
	}
	env.runJSON(&report, "owner-reply", "id-1")
	assert.Equal(t, 0, report.RepliedCount, "comments already answered are skipped")
	assert.True(t, report.Applied)
	require.Len(t, report.Comments, 1)
	require.Len(t, report.Comments[0].Replies, 1)
	assert.Equal(t, "Clara", report.Comments[0].Replies[0].Bot)
}

func TestSimulateCommand(t *testing.T) {
	env := newTestEnv(t, simserver.WithDecider(simserver.FixedDecider{Default: simserver.DecisionLike}))
	_, err := env.run("post", "create", "Clara", "hello")
	require.NoError(t, err)

	var report struct {
		PostID    string `json:"post_id"`
		Mode      string `json:"mode"`
		Kind      string `json:"kind"`
		Likes     int    `json:"likes"`
		Refetched bool   `json:"refetched"`
		Applied   string `json:"applied"`
	}
	env.runJSON(&report, "simulate", "id-1", "--mode", "all")
	assert.Equal(t, "id-1", report.PostID)
	assert.Equal(t, "all", report.Mode)
	assert.Equal(t, 7, report.Likes, "every persona but the author likes")
	assert.True(t, report.Refetched)

	var post feed.Post
	env.runJSON(&post, "feed", "id-1")
	assert.Equal(t, 7, post.Likes)

	var batch []struct {
		PostID string `json:"post_id"`
		Likes  int    `json:"likes"`
	}
	env.runJSON(&batch, "simulate")
	require.Len(t, batch, 1)
	assert.Equal(t, "id-1", batch[0].PostID)
	assert.Equal(t, 1, batch[0].Likes)
}

func TestSimulateCommand_InvalidMode(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("simulate", "--mode", "everyone")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestBotsAndExplain(t *testing.T) {
	env := newTestEnv(t)

	var bots []feed.Persona
	env.runJSON(&bots, "bots")
	require.Len(t, bots, len(env.srv.Personas()))
	assert.Equal(t, "Clara", bots[0].Name)

	out, err := env.run("bots")
	require.NoError(t, err)
	assert.Contains(t, out, "Clara")

	var exp feed.Explanation
	env.runJSON(&exp, "explain", "Luna", "the stars tonight")
	assert.NotEmpty(t, exp.Decision)
	assert.NotEmpty(t, exp.Tokens)
}

func TestScheduleCommand_Errors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("schedule")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no schedule")

	_, err = env.run("schedule", "--spec", "@every 1m", "--mode", "some")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")

	_, err = env.run("schedule", "--spec", "not a schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestServeCommand_BadPersonas(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run("serve", "--personas", "/nonexistent/personas.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load personas")
}
