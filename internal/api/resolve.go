package api

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/illegalcall/profile-resolver/internal/metrics"
	"github.com/illegalcall/profile-resolver/internal/models"
	"github.com/illegalcall/profile-resolver/internal/providers"
	"github.com/illegalcall/profile-resolver/internal/resolver"
)

func invalidInput(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: message,
		Code:  string(providers.CodeInvalidInput),
	})
}

func (s *Server) resolveContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if s.cfg.Server.RequestTimeout > 0 {
		return context.WithTimeout(c.UserContext(), s.cfg.Server.RequestTimeout)
	}
	return context.WithCancel(c.UserContext())
}

func (s *Server) handleResolve(c *fiber.Ctx) error {
	var req models.ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidInput(c, "Invalid request body")
	}
	username, err := providers.NormalizeUsername(req.Username)
	if err != nil {
		return invalidInput(c, err.Error())
	}
	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		s.metrics.ObserveResolution("unknown", metrics.OutcomeInvalidInput)
		return invalidInput(c, err.Error())
	}

	ctx, cancel := s.resolveContext(c)
	defer cancel()

	requestID := c.Get("X-Request-ID", uuid.NewString())
	c.Set("X-Request-ID", requestID)

	res, err := s.manager.ResolveDetailed(ctx, resolver.Request{
		RequestID: requestID,
		Username:  username,
		Platform:  platform,
		Preferred: models.ProviderSource(strings.ToLower(req.PreferredProvider)),
	})
	if err != nil {
		status, body := resolver.Describe(err)
		return c.Status(status).JSON(body)
	}

	return c.JSON(models.ResolveResponse{
		Profile:  res.Profile,
		Attempts: resolver.AttemptBodies(res.Attempts),
	})
}

func (s *Server) handleResolveBatch(c *fiber.Ctx) error {
	var req models.BatchResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidInput(c, "Invalid request body")
	}
	if len(req.Usernames) == 0 {
		return invalidInput(c, "usernames is required")
	}
	if limit := s.cfg.Resolver.BatchMax; limit > 0 && len(req.Usernames) > limit {
		return invalidInput(c, fmt.Sprintf("at most %d usernames per batch", limit))
	}
	platform, err := models.ParsePlatform(req.Platform)
	if err != nil {
		s.metrics.ObserveResolution("unknown", metrics.OutcomeInvalidInput)
		return invalidInput(c, err.Error())
	}
	usernames := make([]string, len(req.Usernames))
	for i, raw := range req.Usernames {
		if usernames[i], err = providers.NormalizeUsername(raw); err != nil {
			return invalidInput(c, fmt.Sprintf("usernames[%d]: %v", i, err))
		}
	}

	ctx, cancel := s.resolveContext(c)
	defer cancel()

	items, err := s.manager.ResolveBatch(ctx, platform,
		models.ProviderSource(strings.ToLower(req.PreferredProvider)),
		usernames, s.cfg.Resolver.BatchConcurrency)
	if err != nil {
		s.logger.Warn("Batch resolution interrupted", "error", err)
	}

	resp := models.BatchResolveResponse{Results: make([]models.BatchItem, 0, len(items))}
	for _, item := range items {
		out := models.BatchItem{Username: item.Username}
		switch {
		case item.Result != nil:
			out.Profile = item.Result.Profile
		case item.Err != nil:
			_, body := resolver.Describe(item.Err)
			out.Error = &body
		default:
			out.Error = &models.ErrorResponse{Error: "not resolved before the request ended"}
		}
		resp.Results = append(resp.Results, out)
	}
	return c.JSON(resp)
}

func (s *Server) handleListProviders(c *fiber.Ctx) error {
	list := s.manager.Providers()
	out := make([]models.ProviderInfo, 0, len(list))
	for _, p := range list {
		info := models.ProviderInfo{Name: string(p.Name()), Configured: p.Configured()}
		for _, platform := range p.Platforms() {
			info.Platforms = append(info.Platforms, string(platform))
		}
		out = append(out, info)
	}
	return c.JSON(fiber.Map{"providers": out})
}
