package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"scrapeforge/internal/store"
)

// getSettingsHandler returns every persisted settings override.
func getSettingsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	settings, err := st.Settings.All(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "SETTINGS_LOAD_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(SettingsResponse{
		Success:  true,
		Settings: settings,
	})
}

// updateSettingsHandler upserts the submitted keys and returns the full
// settings map afterwards.
func updateSettingsHandler(c *fiber.Ctx) error {
	var req UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	if len(req.Settings) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Field 'settings' must contain at least one key",
		})
	}
	for key := range req.Settings {
		if strings.TrimSpace(key) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "Settings keys must not be empty",
			})
		}
	}

	st := c.Locals("store").(*store.Store)
	for key, value := range req.Settings {
		if err := st.Settings.Set(c.Context(), key, value); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Success: false,
				Code:    "SETTINGS_SAVE_FAILED",
				Error:   err.Error(),
			})
		}
	}

	settings, err := st.Settings.All(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "SETTINGS_LOAD_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(SettingsResponse{
		Success:  true,
		Settings: settings,
	})
}
