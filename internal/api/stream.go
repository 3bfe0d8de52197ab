package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ad-itya07/Dionysus/internal/ingest"
	"github.com/ad-itya07/Dionysus/internal/pubsub"
	"github.com/ad-itya07/Dionysus/internal/store"
)

func setSSEHeaders(c fiber.Ctx) {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
}

// writeEvent writes one server-sent event and flushes it. A flush error
// means the client has gone away.
func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

// events streams a project's ingestion progress. The current status is sent
// first; the stream ends after a completed or failed event.
func (s *Server) events(c fiber.Ctx) error {
	id := c.Params("id")
	if s.deps.Broker == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "progress events are disabled"})
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.deps.EventTimeout)
	// Subscribe before reading the status so no event is missed between
	// the two.
	ch := s.deps.Broker.SubscribeFunc(ctx, func(e ingest.ProgressEvent) bool { return e.ProjectID == id })

	st, err := s.deps.Service.Status(id)
	if err != nil {
		cancel()
		return s.fail(c, err)
	}

	setSSEHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		first := ingest.ProgressEvent{
			ProjectID:        st.ProjectID,
			Stage:            "current",
			Status:           st.Status,
			Progress:         st.Progress,
			FilesProcessed:   st.FilesProcessed,
			FilesTotal:       st.FilesTotal,
			CommitsProcessed: st.CommitsProcessed,
			CommitsTotal:     st.CommitsTotal,
			Error:            st.ErrorMessage,
		}
		switch st.Status {
		case store.StatusCompleted:
			writeEvent(w, string(pubsub.Completed), first)
			return
		case store.StatusFailed:
			writeEvent(w, string(pubsub.Failed), first)
			return
		}
		if err := writeEvent(w, string(pubsub.Progress), first); err != nil {
			return
		}

		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return
				}
				if err := writeEvent(w, string(e.Type), e.Payload); err != nil {
					return
				}
				if e.Type.Terminal() {
					return
				}
			case <-ctx.Done():
				s.logger.Debug("progress stream closed", "project", id, "reason", ctx.Err())
				return
			}
		}
	})
}

type askRequest struct {
	Question string `json:"question"`
}

// ask streams an answer as server-sent events: one "references" event,
// then "delta" events carrying text, then "done" or "error".
func (s *Server) ask(c fiber.Ctx) error {
	var body askRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ans, err := s.deps.Answerer.Ask(ctx, c.Params("id"), body.Question)
	if err != nil {
		cancel()
		return s.fail(c, err)
	}

	setSSEHeaders(c)
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		if err := writeEvent(w, "references", fiber.Map{"overview": ans.Overview, "fileReferences": ans.References}); err != nil {
			return
		}
		for d := range ans.Deltas() {
			if err := writeEvent(w, "delta", d); err != nil {
				// Unblocks and ends the answer stream.
				cancel()
				return
			}
		}
		if err := ans.Err(); err != nil {
			writeEvent(w, "error", fiber.Map{"error": "answer generation failed"})
			return
		}
		writeEvent(w, "done", fiber.Map{"at": time.Now().UTC().Format(timeFormat)})
	})
}
