package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"scrapeforge/internal/jobs"
	"scrapeforge/internal/model"
	"scrapeforge/internal/store"
)

// createJobHandler validates and persists a new job. Jobs are created
// pending; nothing runs until /start.
func createJobHandler(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'name'",
		})
	}
	if len(req.URLs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Field 'urls' must contain at least one URL",
		})
	}
	for i, u := range req.URLs {
		if strings.TrimSpace(u) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   fmt.Sprintf("URL %d is empty", i+1),
			})
		}
	}

	mode := model.JobMode(req.Mode)
	switch mode {
	case "":
		mode = model.ModeList
	case model.ModeSingle, model.ModeList, model.ModeCrawl:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   fmt.Sprintf("Unknown mode %q; expected single, list or crawl", req.Mode),
		})
	}

	rules, err := rulesFromInput(req.Rules)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}

	st := c.Locals("store").(*store.Store)
	job, err := st.CreateJob(c.Context(), req.Name, mode, req.URLs, rules, req.Settings)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_CREATE_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(JobResponse{
		Success: true,
		Job:     job,
	})
}

// rulesFromInput converts API rule payloads to model rules, filling the
// css default and positional display order.
func rulesFromInput(inputs []RuleInput) ([]model.Rule, error) {
	rules := make([]model.Rule, 0, len(inputs))
	for i, r := range inputs {
		if strings.TrimSpace(r.FieldName) == "" {
			return nil, fmt.Errorf("rule %d is missing fieldName", i+1)
		}
		if strings.TrimSpace(r.Selector) == "" {
			return nil, fmt.Errorf("rule %d is missing selector", i+1)
		}

		kind := model.SelectorKind(r.SelectorKind)
		switch kind {
		case "":
			kind = model.SelectorCSS
		case model.SelectorCSS, model.SelectorXPath:
		default:
			return nil, fmt.Errorf("rule %d has unknown selectorKind %q; expected css or xpath", i+1, r.SelectorKind)
		}

		order := r.DisplayOrder
		if order <= 0 {
			order = i + 1
		}

		rules = append(rules, model.Rule{
			FieldName:    r.FieldName,
			SelectorKind: kind,
			Selector:     r.Selector,
			Attribute:    r.Attribute,
			IsList:       r.IsList,
			IsRequired:   r.IsRequired,
			DisplayOrder: order,
		})
	}
	return rules, nil
}

// listJobsHandler lists jobs, optionally filtered by status. Archived
// jobs are hidden unless include_archived=true or status=archived.
func listJobsHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)

	includeArchived := false
	if v := c.Query("include_archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "invalid include_archived value; expected true or false",
			})
		}
		includeArchived = b
	}

	statusFilter := c.Query("status")
	if statusFilter == string(model.JobArchived) {
		includeArchived = true
	}

	list, err := st.Jobs.List(c.Context(), includeArchived)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_LIST_FAILED",
			Error:   err.Error(),
		})
	}

	if statusFilter != "" {
		filtered := make([]model.Job, 0, len(list))
		for _, job := range list {
			if string(job.Status) == statusFilter {
				filtered = append(filtered, job)
			}
		}
		list = filtered
	}

	return c.Status(fiber.StatusOK).JSON(ListJobsResponse{
		Success: true,
		Jobs:    list,
	})
}

// jobStatusHandler returns the job's live status snapshot, including
// URL counts and whether a worker is attached.
func jobStatusHandler(c *fiber.Ctx) error {
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)

	snap, err := orch.Status(c.Context(), c.Params("id"))
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
			Code:    "JOB_STATUS_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(JobStatusResponse{
		Success: true,
		Job:     &snap,
	})
}

// deleteJobHandler removes a job and, via cascade, its URLs, rules and
// results. Running jobs must be stopped first.
func deleteJobHandler(c *fiber.Ctx) error {
	st := c.Locals("store").(*store.Store)
	orch := c.Locals("orchestrator").(*jobs.Orchestrator)
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
			Code:    "JOB_DELETE_FAILED",
			Error:   err.Error(),
		})
	}

	if job.Status == model.JobRunning || orch.IsRunning(jobID) {
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_STATE",
			Error:   "cannot delete a running job; stop it first",
		})
	}

	if err := st.Jobs.Delete(c.Context(), jobID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "JOB_DELETE_FAILED",
			Error:   err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(ActionResponse{Success: true})
}
