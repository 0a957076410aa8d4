// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/alan-mat/docchat/internal/api"
	"github.com/alan-mat/docchat/internal/config"
	"github.com/alan-mat/docchat/internal/rag"
	"github.com/alan-mat/docchat/internal/session"
	"github.com/alan-mat/docchat/internal/tasks"
	"github.com/alan-mat/docchat/internal/transport"
)

type sessionResponse struct {
	ID          string          `json:"id"`
	Settings    config.Settings `json:"settings"`
	Initialized bool            `json:"initialized"`
	LastTraceID string          `json:"last_trace_id,omitempty"`
	Missing     []string        `json:"missing"`
}

func newSessionResponse(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:          sess.ID,
		Settings:    sess.Settings.Redacted(),
		Initialized: sess.Initialized,
		LastTraceID: sess.LastTraceID,
		Missing:     sess.Settings.Missing(),
	}
}

type traceResponse struct {
	TraceID string `json:"trace_id"`
}

type messageRequest struct {
	Content string `json:"content"`
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Database":   s.defaults.Database,
		"Collection": s.defaults.Collection,
		"ProjectID":  s.defaults.ProjectID,
		"Bucket":     s.defaults.Bucket,
		"IndexName":  s.indexName,
	})
}

func (s *Server) healthz(c *gin.Context) {
	if s.ping != nil {
		if err := s.ping(c.Request.Context()); err != nil {
			slog.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) createSession(c *gin.Context) {
	sess := session.New(s.defaults)
	if err := s.sessions.Create(c.Request.Context(), sess); err != nil {
		internalError(c, err)
		return
	}
	slog.Info("created session", "session", sess.ID)
	c.JSON(http.StatusCreated, newSessionResponse(sess))
}

// loadSession writes the error response itself and returns nil when the
// session cannot be read.
func (s *Server) loadSession(c *gin.Context) *session.Session {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return nil
	}
	if err != nil {
		internalError(c, err)
		return nil
	}
	return sess
}

func (s *Server) getSession(c *gin.Context) {
	if sess := s.loadSession(c); sess != nil {
		c.JSON(http.StatusOK, newSessionResponse(sess))
	}
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) saveSettings(c *gin.Context) {
	var settings config.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid settings"})
		return
	}

	sess, err := s.sessions.SaveSettings(c.Request.Context(), c.Param("id"), settings.Normalize().Merge(s.defaults))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "session not found"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// fillOut answers 400 when any required form field is empty.
func fillOut(c *gin.Context, settings config.Settings) bool {
	missing := settings.Missing()
	if len(missing) == 0 {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"message": config.FillOutMessage,
		"missing": missing,
	})
	return true
}

func (s *Server) initSession(c *gin.Context) {
	sess := s.loadSession(c)
	if sess == nil || fillOut(c, sess.Settings) {
		return
	}

	t, traceID, err := tasks.NewInitTask(sess.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	if s.enqueue(c, sess, t) {
		s.accepted(c, sess, traceID)
	}
}

func (s *Server) listMessages(c *gin.Context) {
	sess := s.loadSession(c)
	if sess == nil {
		return
	}
	msgs, err := s.sessions.Messages(c.Request.Context(), sess.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "message content is required"})
		return
	}

	sess := s.loadSession(c)
	if sess == nil {
		return
	}
	if !s.emulate {
		if fillOut(c, sess.Settings) {
			return
		}
		if !sess.Initialized {
			c.JSON(http.StatusConflict, gin.H{"message": rag.ErrNotInitialized.Error()})
			return
		}
	}

	ctx := c.Request.Context()
	history, err := s.sessions.Messages(ctx, sess.ID)
	if err != nil {
		internalError(c, err)
		return
	}
	t, traceID, err := tasks.NewChatTask(sess.ID, req.Content, history)
	if err != nil {
		internalError(c, err)
		return
	}
	if err := s.sessions.AppendMessage(ctx, sess.ID, api.UserMessage(req.Content)); err != nil {
		internalError(c, err)
		return
	}
	if !s.enqueue(c, sess, t) {
		// no answer is coming, drop the unanswered question
		if err := s.sessions.PopMessage(ctx, sess.ID); err != nil {
			slog.Warn("failed to drop unanswered message", "session", sess.ID, "err", err)
		}
		return
	}
	s.accepted(c, sess, traceID)
}

// enqueue hands t to the worker queue. On failure it writes the error
// response and returns false.
func (s *Server) enqueue(c *gin.Context, sess *session.Session, t *asynq.Task) bool {
	info, err := s.tasks.Enqueue(t)
	if err != nil {
		internalError(c, err)
		return false
	}
	slog.Info("enqueued task successfully", "id", info.ID, "type", t.Type(), "session", sess.ID)
	return true
}

func (s *Server) accepted(c *gin.Context, sess *session.Session, traceID string) {
	if err := s.sessions.SetLastTrace(c.Request.Context(), sess.ID, traceID); err != nil {
		slog.Warn("failed to record trace on session", "session", sess.ID, "err", err)
	}
	c.JSON(http.StatusAccepted, traceResponse{TraceID: traceID})
}

func (s *Server) getTrace(c *gin.Context) {
	trace, err := s.transport.GetTrace(c.Request.Context(), c.Param("id"))
	if errors.Is(err, transport.ErrTraceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "trace with given id does not exist"})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trace":  trace,
		"status": transport.TraceStatusName(trace.Status),
	})
}

func internalError(c *gin.Context, err error) {
	slog.Error("request failed", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal server error"})
}
