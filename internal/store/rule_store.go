package store

import (
	"context"
	"database/sql"

	"scrapeforge/internal/model"
)

// RuleStore reads a job's extraction rules.
type RuleStore struct {
	db *sql.DB
}

// ListByJob returns a job's rules in display order.
func (rs *RuleStore) ListByJob(ctx context.Context, jobID string) ([]model.Rule, error) {
	rows, err := rs.db.QueryContext(ctx,
		`SELECT id, job_id, field_name, selector_kind, selector, attribute, is_list, is_required, display_order
		 FROM job_rules
		 WHERE job_id = $1
		 ORDER BY display_order ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.Rule
	for rows.Next() {
		var (
			r    model.Rule
			kind string
			attr sql.NullString
		)
		err := rows.Scan(&r.ID, &r.JobID, &r.FieldName, &kind, &r.Selector,
			&attr, &r.IsList, &r.IsRequired, &r.DisplayOrder)
		if err != nil {
			return nil, err
		}
		r.SelectorKind = model.SelectorKind(kind)
		r.Attribute = attr.String
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
