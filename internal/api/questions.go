package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/ad-itya07/Dionysus/internal/store"
)

type saveQuestionRequest struct {
	Question       string                `json:"question"`
	Answer         string                `json:"answer"`
	FileReferences []store.FileReference `json:"fileReferences"`
}

type questionResponse struct {
	ID             string                `json:"id"`
	UserID         string                `json:"userId"`
	Question       string                `json:"question"`
	Answer         string                `json:"answer"`
	FileReferences []store.FileReference `json:"fileReferences"`
	CreatedAt      string                `json:"createdAt"`
}

func toQuestionResponse(q store.SavedQuestion) questionResponse {
	refs := q.FileReferences
	if refs == nil {
		refs = []store.FileReference{}
	}
	return questionResponse{
		ID:             q.ID,
		UserID:         q.UserID,
		Question:       q.Question,
		Answer:         q.Answer,
		FileReferences: refs,
		CreatedAt:      q.CreatedAt.Format(timeFormat),
	}
}

func (s *Server) saveQuestion(c fiber.Ctx) error {
	var body saveQuestionRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	q, err := s.deps.Answerer.SaveAnswer(c.Params("id"), userID(c), body.Question, body.Answer, body.FileReferences)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toQuestionResponse(*q))
}

func (s *Server) listQuestions(c fiber.Ctx) error {
	questions, err := s.deps.Answerer.ListQuestions(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, toQuestionResponse(q))
	}
	return c.JSON(fiber.Map{"questions": out, "count": len(out)})
}
