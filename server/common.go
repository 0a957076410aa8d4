package server

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alan-mat/docchat/internal/metrics"
	"github.com/alan-mat/docchat/internal/transport"
)

const maxReadFails = 10

// failureEvent names error messages on the wire. EventSource reserves
// "error" for connection failures.
const failureEvent = "failure"

func eventName(t transport.MessageType) string {
	if t == transport.MessageTypeError {
		return failureEvent
	}
	return t.String()
}

// traceEvents relays a task's message stream as server-sent events until
// the final message. A client disconnect ends the relay, not the task.
func (s *Server) traceEvents(c *gin.Context) {
	traceID := c.Param("id")
	tstream, err := s.transport.GetMessageStream(traceID)
	if err != nil {
		slog.Error("failed to retrieve stream", "id", traceID, "err", err)
		internalError(c, err)
		return
	}

	ctx := c.Request.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	gauge := metrics.Get().SSEClients
	gauge.Inc()
	defer gauge.Dec()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	readFails := 0
	c.Stream(func(w io.Writer) bool {
		msg, err := tstream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("event stream closed", "trace", traceID, "err", ctx.Err())
				return false
			}
			slog.Warn("failed to read from stream", "stream", traceID, "err", err)
			readFails += 1
			if readFails >= maxReadFails {
				slog.Error("exceeded stream read attempts, failed", "id", traceID)
				c.SSEvent(failureEvent, transport.MessageStreamPayload{
					Type:    transport.MessageTypeError,
					Status:  transport.StatusErr,
					Content: "internal server error",
				})
				return false
			}
			time.Sleep(100 * time.Millisecond)
			return true
		}
		readFails = 0

		c.SSEvent(eventName(msg.Type), msg)
		if msg.Final() {
			slog.Debug("message stream done", "trace", traceID, "status", msg.Status)
			return false
		}
		return true
	})
}
