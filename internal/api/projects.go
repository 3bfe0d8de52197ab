package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ad-itya07/Dionysus/internal/credits"
)

const timeFormat = time.RFC3339

type repoRequest struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repoUrl"`
	GitHubToken string `json:"githubToken"`
}

type projectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RepoURL   string `json:"repoUrl"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) checkRepository(c fiber.Ctx) error {
	var body repoRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	est, err := s.deps.Service.CheckRepository(c.Context(), userID(c), body.RepoURL, body.GitHubToken)
	var ice *credits.InsufficientCreditsError
	if err != nil && !errors.As(err, &ice) {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"repo":             est.Repo.String(),
		"fileCount":        est.FileCount,
		"requiredCredits":  est.RequiredCredits,
		"availableCredits": est.Available,
		"sufficient":       err == nil,
	})
}

func (s *Server) createProject(c fiber.Ctx) error {
	var body repoRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	p, err := s.deps.Service.CreateProject(c.Context(), userID(c), body.Name, body.RepoURL, body.GitHubToken)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(projectResponse{
		ID:        p.ID,
		Name:      p.Name,
		RepoURL:   p.RepoURL,
		Status:    string(p.Status),
		Progress:  p.Progress,
		CreatedAt: p.CreatedAt.Format(timeFormat),
	})
}

func (s *Server) listProjects(c fiber.Ctx) error {
	projects, err := s.deps.Service.Projects(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse{
			ID:        p.ID,
			Name:      p.Name,
			RepoURL:   p.RepoURL,
			Status:    string(p.Status),
			Progress:  p.Progress,
			CreatedAt: p.CreatedAt.Format(timeFormat),
		})
	}
	return c.JSON(fiber.Map{"projects": out, "count": len(out)})
}

func (s *Server) status(c fiber.Ctx) error {
	st, err := s.deps.Service.Status(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(st)
}

func (s *Server) restart(c fiber.Ctx) error {
	if err := s.deps.Service.Restart(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": c.Params("id"), "status": "restarted"})
}

func (s *Server) archive(c fiber.Ctx) error {
	if err := s.deps.Service.Archive(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type commitResponse struct {
	Hash         string `json:"hash"`
	Message      string `json:"message"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	CommittedAt  string `json:"committedAt"`
	Summary      string `json:"summary"`
}

func (s *Server) commits(c fiber.Ctx) error {
	commits, err := s.deps.Service.ListCommits(c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]commitResponse, 0, len(commits))
	for _, cm := range commits {
		out = append(out, commitResponse{
			Hash:         cm.Hash,
			Message:      cm.Message,
			AuthorName:   cm.AuthorName,
			AuthorAvatar: cm.AuthorAvatar,
			CommittedAt:  cm.CommittedAt.Format(timeFormat),
			Summary:      cm.Summary,
		})
	}
	return c.JSON(fiber.Map{"commits": out, "count": len(out)})
}

func (s *Server) credits(c fiber.Ctx) error {
	id := c.Params("id")
	if id != userID(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}
	n, err := s.deps.Admission.Balance(id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"userId": id, "credits": n})
}

type memberResponse struct {
	UserID   string `json:"userId"`
	Owner    bool   `json:"owner"`
	JoinedAt string `json:"joinedAt"`
}

func (s *Server) listMembers(c fiber.Ctx) error {
	members, err := s.deps.Service.Members(userID(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID:   m.UserID,
			Owner:    m.Owner,
			JoinedAt: m.JoinedAt.Format(timeFormat),
		})
	}
	return c.JSON(fiber.Map{"members": out, "count": len(out)})
}

func (s *Server) addMember(c fiber.Ctx) error {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.deps.Service.AddMember(userID(c), c.Params("id"), body.UserID); err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": c.Params("id"), "userId": body.UserID})
}
