package tasks

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/alan-mat/docchat/internal/api"
)

const (
	TypeInit = "docchat:init"
	TypeChat = "docchat:chat"
)

type initTaskPayload struct {
	TraceID string
	Session string
}

type chatTaskPayload struct {
	TraceID string
	Session string
	Query   string
	History []*api.ChatMessage
}

// NewInitTask creates the task that indexes a session's bucket. The
// returned id names both the task and its message stream.
func NewInitTask(sessionID string) (*asynq.Task, string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(initTaskPayload{
		TraceID: id,
		Session: sessionID,
	})
	if err != nil {
		return nil, "", err
	}
	return asynq.NewTask(TypeInit, payload, asynq.TaskID(id), asynq.MaxRetry(0)), id, nil
}

// NewChatTask creates the task that answers query. history holds the
// transcript before query.
func NewChatTask(sessionID, query string, history []*api.ChatMessage) (*asynq.Task, string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(chatTaskPayload{
		TraceID: id,
		Session: sessionID,
		Query:   query,
		History: history,
	})
	if err != nil {
		return nil, "", err
	}
	return asynq.NewTask(TypeChat, payload, asynq.TaskID(id), asynq.MaxRetry(0)), id, nil
}
