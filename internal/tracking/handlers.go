package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"backend-stride/internal/auth"
	"backend-stride/internal/export"
	"backend-stride/internal/history"
	"backend-stride/internal/run"

	"github.com/gofiber/fiber/v2"
)

type permissionRequest struct {
	Status string `json:"status"`
}

type locationErrorRequest struct {
	Message string `json:"message"`
}

func RegisterRoutes(r fiber.Router, reg *Registry, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		snap, err := entry.Tracker.RequestStart()
		if err != nil {
			return conditionResponse(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		if err := entry.Tracker.RequestPause(); err != nil {
			return conditionResponse(c, err)
		}
		return c.JSON(entry.Tracker.Snapshot())
	})

	r.Post("/resume", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		if err := entry.Tracker.RequestResume(); err != nil {
			return conditionResponse(c, err)
		}
		return c.JSON(entry.Tracker.Snapshot())
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		session, err := entry.Tracker.RequestStop()
		if err != nil {
			return conditionResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"run":       session.Summarize(reg.now()),
			"locations": session.Path,
		})
	})

	r.Post("/confirm", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"changed": entry.Tracker.ConfirmCompletedRun()})
	})

	r.Post("/discard", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"changed": entry.Tracker.DiscardCompletedRun()})
	})

	r.Post("/samples", authMiddleware, func(c *fiber.Ctx) error {
		samples, err := parseSamples(c.Body())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}

		accepted := 0
		for _, sample := range samples {
			if sample.Timestamp.IsZero() {
				sample.Timestamp = reg.now()
			}
			if entry.Feed.OnSample(sample) {
				accepted++
			}
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted": accepted,
			"ignored":  len(samples) - accepted,
			"points":   entry.Tracker.Snapshot().Points,
		})
	})

	r.Put("/permission", authMiddleware, func(c *fiber.Ctx) error {
		var req permissionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		perm, ok := run.ParsePermission(req.Status)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "unknown permission status")
		}
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		if err := entry.Tracker.UpdatePermission(perm); err != nil {
			return advisoryResponse(c, err)
		}
		return c.JSON(entry.Tracker.Snapshot())
	})

	r.Post("/location-errors", authMiddleware, func(c *fiber.Ctx) error {
		var req locationErrorRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Message == "" {
			return fiber.NewError(fiber.StatusBadRequest, "message required")
		}
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		return advisoryResponse(c, entry.Tracker.ReportLocationError(errors.New(req.Message)))
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		return c.JSON(entry.Tracker.Snapshot())
	})

	r.Get("/history", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		now := reg.now()
		sessions := entry.History.All()
		out := make([]run.Summary, 0, len(sessions))
		for i := range sessions {
			out = append(out, sessions[i].Summarize(now))
		}
		return c.JSON(out)
	})

	r.Get("/history/stats", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		return c.JSON(history.Summarize(entry.History.All(), reg.now()))
	})

	r.Get("/history/:id/fit", authMiddleware, func(c *fiber.Ctx) error {
		entry, err := entryFor(c, reg)
		if err != nil {
			return err
		}
		session, ok := entry.History.Get(c.Params("id"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "run not found")
		}

		var buf bytes.Buffer
		if err := export.EncodeFIT(&buf, session); err != nil {
			if errors.Is(err, export.ErrRunNotFinished) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/octet-stream")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.fit"`, session.ID))
		return c.Send(buf.Bytes())
	})

	r.Delete("/tracker", authMiddleware, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user required")
		}
		reg.Release(userID)
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func entryFor(c *fiber.Ctx, reg *Registry) (*Entry, error) {
	userID := auth.UserID(c)
	if userID == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "user required")
	}
	return reg.Get(c.Context(), userID), nil
}

func conditionResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusConflict
	switch {
	case errors.Is(err, run.ErrPermissionDenied):
		status = fiber.StatusForbidden
	case errors.Is(err, run.ErrTrackerClosed):
		status = fiber.StatusGone
	case run.ConditionName(err) == "error":
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(status).JSON(conditionBody(err))
}

func advisoryResponse(c *fiber.Ctx, err error) error {
	if errors.Is(err, run.ErrTrackerClosed) {
		return conditionResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(conditionBody(err))
}

func conditionBody(err error) fiber.Map {
	return fiber.Map{"condition": run.ConditionName(err), "message": err.Error()}
}

// parseSamples accepts a single sample object or an array of them.
func parseSamples(body []byte) ([]run.PositionSample, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("sample required")
	}

	var samples []run.PositionSample
	if body[0] == '[' {
		if err := json.Unmarshal(body, &samples); err != nil {
			return nil, err
		}
	} else {
		var sample run.PositionSample
		if err := json.Unmarshal(body, &sample); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	for _, s := range samples {
		if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("coordinate out of range: %v,%v", s.Latitude, s.Longitude)
		}
	}
	return samples, nil
}

