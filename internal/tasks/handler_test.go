package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/tasks"
	"github.com/alan-mat/docchat/internal/transport"
)

type fakeRunner struct {
	initErr  error
	chatErr  error
	emulated bool
	// onInit runs while the init task is loading documents.
	onInit func()

	history []*api.ChatMessage
}

func (r *fakeRunner) Init(ctx context.Context, taskID string, s config.Settings) (*rag.InitResult, error) {
	if r.onInit != nil {
		r.onInit()
	}
	if r.initErr != nil {
		return nil, r.initErr
	}
	return &rag.InitResult{DocumentsLoaded: 2, ChunksIndexed: 5, IndexName: config.DefaultIndexName}, nil
}

func (r *fakeRunner) Chat(ctx context.Context, taskID string, s config.Settings, query string, history []*api.ChatMessage) (*rag.ChatResult, error) {
	r.history = history
	if r.chatErr != nil {
		return nil, r.chatErr
	}
	return &rag.ChatResult{Answer: "answer to " + query, Query: query}, nil
}

func (r *fakeRunner) Emulated() bool { return r.emulated }

func setup(t *testing.T, tr transport.Transport, r *fakeRunner) (*tasks.TaskHandler, session.Store, *session.Session) {
	t.Helper()
	store := session.NewMemoryStore()
	sess := session.New(config.DefaultSettings())
	require.NoError(t, store.Create(context.Background(), sess))
	return tasks.NewTaskHandler(tr, store, r), store, sess
}

func lastMessage(t *testing.T, tr transport.Transport, id string) *transport.MessageStreamPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ms, err := tr.GetMessageStream(id)
	require.NoError(t, err)
	for {
		msg, err := ms.Recv(ctx)
		require.NoError(t, err)
		if msg.Final() {
			return msg
		}
	}
}

func TestInitTaskMarksSessionInitialized(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	h, store, sess := setup(t, tr, &fakeRunner{})

	task, id, err := tasks.NewInitTask(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TypeInit, task.Type())

	require.NoError(t, h.ProcessTask(ctx, task))
	assert.Equal(t, transport.StatusDone, lastMessage(t, tr, id).Status)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, got.Initialized)
	assert.Equal(t, id, got.LastTraceID)

	trace, err := tr.GetTrace(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, transport.TraceStatusCompleted, trace.Status)
	assert.Equal(t, "init", trace.Kind)
	assert.NotZero(t, trace.CompletedAt)
}

func TestInitTaskIgnoresSettingsChangedMeanwhile(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	r := &fakeRunner{}
	h, store, sess := setup(t, tr, r)
	r.onInit = func() {
		settings := sess.Settings
		settings.Bucket = "other-bucket"
		_, err := store.SaveSettings(ctx, sess.ID, settings)
		require.NoError(t, err)
	}

	task, id, err := tasks.NewInitTask(sess.ID)
	require.NoError(t, err)
	require.ErrorIs(t, h.ProcessTask(ctx, task), session.ErrSettingsChanged)
	assert.Equal(t, session.ErrSettingsChanged.Error(), lastMessage(t, tr, id).Content)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Initialized)
	assert.Equal(t, "other-bucket", got.Settings.Bucket)
}

func TestInitTaskFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewMemoryTransport()
	h, store, sess := setup(t, tr, &fakeRunner{initErr: errors.New("failed to load documents")})

	task, id, err := tasks.NewInitTask(sess.ID)
	require.NoError(t, err)

	err = h.ProcessTask(ctx, task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	msg := lastMessage(t, tr, id)
	assert.Equal(t, transport.StatusErr, msg.Status)
	assert.Equal(t, transport.MessageTypeError, msg.Type)
	assert.Contains(t, msg.Content, "failed to load documents")

	trace, err := tr.GetTrace(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, transport.TraceStatusFailed, trace.Status)
	assert.Equal(t, "failed to load documents", trace.FailReason)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.Initialized)
}

func TestMissingFieldsAreReportedWithFillOutMessage(t *testing.T) {
	tr := transport.NewMemoryTransport()
	h, _, sess := setup(t, tr, &fakeRunner{initErr: config.MissingFieldsError{Fields: []string{"GCS Bucket"}}})

	task, id, err := tasks.NewInitTask(sess.ID)
	require.NoError(t, err)
	require.Error(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, config.FillOutMessage, lastMessage(t, tr, id).Content)
}

func TestChatTaskAppendsReply(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	tr := transport.NewRedisTransport(rdb)
	tr.Block = 50 * time.Millisecond
	r := &fakeRunner{}
	h, store, sess := setup(t, tr, r)
	require.NoError(t, store.MarkInitialized(ctx, sess.ID, "init", sess.Settings))

	history := []*api.ChatMessage{api.UserMessage("hi"), api.AssistantMessage("Do you need help?")}
	task, id, err := tasks.NewChatTask(sess.ID, "what is in the bucket?", history)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(ctx, task))

	assert.Equal(t, transport.StatusDone, lastMessage(t, tr, id).Status)
	assert.Equal(t, history, r.history)

	msgs, err := store.Messages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, api.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "answer to what is in the bucket?", msgs[0].Content)

	trace, err := tr.GetTrace(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "chat", trace.Kind)
	assert.Equal(t, "what is in the bucket?", trace.Query)
}

func TestChatBeforeInitFails(t *testing.T) {
	tr := transport.NewMemoryTransport()
	r := &fakeRunner{}
	h, _, sess := setup(t, tr, r)

	task, id, err := tasks.NewChatTask(sess.ID, "q", nil)
	require.NoError(t, err)
	require.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
	assert.Equal(t, rag.ErrNotInitialized.Error(), lastMessage(t, tr, id).Content)
	assert.Nil(t, r.history)

	r.emulated = true
	task, id, err = tasks.NewChatTask(sess.ID, "What is up?", nil)
	require.NoError(t, err)
	require.NoError(t, h.ProcessTask(context.Background(), task))
	assert.Equal(t, transport.StatusDone, lastMessage(t, tr, id).Status)
}

func TestUnknownSessionAndType(t *testing.T) {
	tr := transport.NewMemoryTransport()
	h, _, _ := setup(t, tr, &fakeRunner{})

	task, id, err := tasks.NewInitTask("missing")
	require.NoError(t, err)
	require.ErrorIs(t, h.ProcessTask(context.Background(), task), session.ErrNotFound)
	assert.Equal(t, transport.StatusErr, lastMessage(t, tr, id).Status)

	payload, _ := json.Marshal(map[string]string{"Session": "x"})
	err = h.ProcessTask(context.Background(), asynq.NewTask("docchat:unknown", payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
