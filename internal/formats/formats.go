package formats

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scrapeforge/internal/model"
)

// Format represents a download encoding for job results.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Parse normalizes a format query value. An empty value defaults to
// JSON. The returned error message is intended to be user-facing and
// is wired directly into HTTP error responses.
func Parse(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown format %q; expected json or csv", s)
	}
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename builds a download filename from the job name. Characters
// outside [a-z0-9-] collapse to single dashes so the name is safe in a
// Content-Disposition header.
func Filename(jobName string, f Format) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(jobName) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		name = "job"
	}
	return fmt.Sprintf("%s-results.%s", name, f)
}

// Encode renders results in the requested format. Rules supply the
// column set and order for CSV; JSON ignores them and marshals the
// records as the API returns them.
func Encode(f Format, rules []model.Rule, results []model.ResultRecord) ([]byte, error) {
	if f == FormatCSV {
		return encodeCSV(rules, results)
	}
	return json.MarshalIndent(results, "", "  ")
}

// encodeCSV writes one row per result with a url and scraped_at column
// followed by one column per extraction rule. A job's rules give every
// result the same field names, which keeps the flat layout well
// defined; list values join with "; ".
func encodeCSV(rules []model.Rule, results []model.ResultRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"url", "scraped_at"}
	for _, r := range rules {
		header = append(header, r.FieldName)
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, res := range results {
		row := []string{res.URL, res.ScrapedAt.UTC().Format(time.RFC3339)}
		for _, r := range rules {
			row = append(row, cellValue(res.Data[r.FieldName]))
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func cellValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, "; ")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(val)
	}
}
