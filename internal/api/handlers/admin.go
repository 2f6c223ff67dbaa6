package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kenchat/kenchat-backend/internal/services"
)

// GetSummarizationConfig returns the engine's current tuning
func GetSummarizationConfig(settings *services.SettingsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(settings.SummarizationConfig())
	}
}

// UpdateSummarizationConfig applies a partial update to the engine's
// tuning and persists the result
func UpdateSummarizationConfig(settings *services.SettingsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var update services.SummarizationConfigUpdate
		if err := c.BodyParser(&update); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		cfg, err := settings.UpdateSummarizationConfig(c.Context(), update)
		if err != nil {
			if errors.Is(err, services.ErrInvalidConfig) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update summarization config",
			})
		}

		return c.JSON(cfg)
	}
}

// GetPromptTemplates returns the active summarization prompt templates
func GetPromptTemplates(settings *services.SettingsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(settings.Templates())
	}
}

// UpdatePromptTemplates applies a partial update to the summarization
// prompt templates and persists the result
func UpdatePromptTemplates(settings *services.SettingsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var update services.PromptTemplatesUpdate
		if err := c.BodyParser(&update); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		templates, err := settings.UpdateTemplates(c.Context(), update)
		if err != nil {
			if errors.Is(err, services.ErrInvalidConfig) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update prompt templates",
			})
		}

		return c.JSON(templates)
	}
}
