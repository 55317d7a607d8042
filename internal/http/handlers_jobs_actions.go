package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"scrapeforge/internal/formats"
	"scrapeforge/internal/jobs"
	"scrapeforge/internal/model"
	"scrapeforge/internal/store"
)

// lifecycleError maps orchestrator errors onto the API envelope.
// failCode labels unexpected failures for the given action.
func lifecycleError(c *fiber.Ctx, err error, failCode string) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "NOT_FOUND",
			Error:   "job not found",
		})
	case errors.Is(err, jobs.ErrInvalidState):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_STATE",
			Error:   err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    failCode,
			Error:   err.Error(),
		})
	}
}

func startJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	started, err := orch.Start(c.Context(), c.Params("id"))
	if err != nil {
		return lifecycleError(c, err, "JOB_START_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Started: started,
		Status:  string(model.JobRunning),
	})
}

func pauseJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	if err := orch.Pause(c.Context(), c.Params("id")); err != nil {
		return lifecycleError(c, err, "JOB_PAUSE_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Status:  string(model.JobPaused),
	})
}

func resumeJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	started, err := orch.Resume(c.Context(), c.Params("id"))
	if err != nil {
		return lifecycleError(c, err, "JOB_RESUME_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Started: started,
		Status:  string(model.JobRunning),
	})
}

func stopJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	if err := orch.Stop(c.Context(), c.Params("id")); err != nil {
		return lifecycleError(c, err, "JOB_STOP_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Status:  string(model.JobCancelled),
	})
}

func archiveJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	if err := orch.Archive(c.Context(), c.Params("id")); err != nil {
		return lifecycleError(c, err, "JOB_ARCHIVE_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Status:  string(model.JobArchived),
	})
}

func unarchiveJobHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	if err := orch.Unarchive(c.Context(), c.Params("id")); err != nil {
		return lifecycleError(c, err, "JOB_UNARCHIVE_FAILED")
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{
		Success: true,
		Status:  string(model.JobPending),
	})
}

// jobLogsHandler pages a job's in-memory log buffer. Clients poll with
// the currentIndex from the previous page as since_index.
func jobLogsHandler(c *fiber.Ctx) error {
	sinceIndex := 0
	if v := c.Query("since_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid since_index value; expected a non-negative integer",
			})
		}
		sinceIndex = n
	}

	level := model.LogLevel(c.Query("level"))
	switch level {
	case "", model.LogInfo, model.LogSuccess, model.LogWarning, model.LogError, model.LogDebug:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "invalid level value; expected info, success, warning, error or debug",
		})
	}

	orch := c.Locals("orchestrator").(*jobs.Orchestrator)
	page := orch.Logs(c.Params("id"), sinceIndex, level)

	return c.Status(fiber.StatusOK).JSON(LogsResponse{
		Success:      true,
		Logs:         page.Logs,
		TotalCount:   page.TotalCount,
		CurrentIndex: page.CurrentIndex,
	})
}

// jobURLsHandler lists a job's URLs with per-URL status and errors.
func jobURLsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	jobID := c.Params("id")

	if _, err := st.Jobs.Get(c.Context(), jobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_URLS_FAILED",
			Error:   err.Error(),
		})
	}

	urls, err := st.URLs.ListByJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_URLS_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(URLsResponse{
		Success: true,
		URLs:    urls,
	})
}

// jobResultsHandler pages a job's extracted results.
func jobResultsHandler(c *fiber.Ctx) error {
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid limit value",
			})
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid offset value",
			})
		}
		offset = n
	}

	st := c.Locals("store").(*store.Store)
	jobID := c.Params("id")

	if _, err := st.Jobs.Get(c.Context(), jobID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_RESULTS_FAILED",
			Error:   err.Error(),
		})
	}

	results, err := st.Results.ListByJob(c.Context(), jobID, limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_RESULTS_FAILED",
			Error:   err.Error(),
		})
	}

	total, err := st.Results.CountByJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_RESULTS_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(ResultsResponse{
		Success: true,
		Results: results,
		Total:   total,
	})
}

// jobExportHandler downloads a job's full result set as a file. CSV
// columns follow the job's rules in display order; the default format
// is JSON.
func jobExportHandler(c *fiber.Ctx) error {
	format, err := formats.Parse(c.Query("format"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}

	st := c.Locals("store").(*store.Store)
	jobID := c.Params("id")

	job, err := st.Jobs.Get(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Success: false,
				Code:    "NOT_FOUND",
				Error:   "job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_EXPORT_FAILED",
			Error:   err.Error(),
		})
	}

	rules, err := st.Rules.ListByJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_EXPORT_FAILED",
			Error:   err.Error(),
		})
	}

	results, err := st.Results.ListAllByJob(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_EXPORT_FAILED",
			Error:   err.Error(),
		})
	}

	body, err := formats.Encode(format, rules, results)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_EXPORT_FAILED",
			Error:   err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", formats.Filename(job.Name, format)))
	return c.Status(fiber.StatusOK).Send(body)
}
