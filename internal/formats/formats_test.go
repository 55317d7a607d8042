package formats

import (
	"strings"
	"testing"
	"time"

	"scrapeforge/internal/model"
)

func TestParse_DefaultsToJSON(t *testing.T) {
	f, err := Parse("")
	if err != nil {
		t.Fatalf("expected empty format to parse, got error: %v", err)
	}
	if f != FormatJSON {
		t.Fatalf("expected json, got %q", f)
	}
}

func TestParse_NormalizesCase(t *testing.T) {
	f, err := Parse(" CSV ")
	if err != nil {
		t.Fatalf("expected csv to parse, got error: %v", err)
	}
	if f != FormatCSV {
		t.Fatalf("expected csv, got %q", f)
	}
}

func TestParse_RejectsUnknown(t *testing.T) {
	_, err := Parse("xml")
	if err == nil {
		t.Fatalf("expected error for unknown format, got nil")
	}
	if !strings.Contains(err.Error(), "xml") {
		t.Fatalf("expected error to name the format, got %q", err.Error())
	}
}

func TestFilename_SanitizesJobName(t *testing.T) {
	got := Filename("Laptops (Q3 / 2025)", FormatCSV)
	if got != "laptops-q3-2025-results.csv" {
		t.Fatalf("expected laptops-q3-2025-results.csv, got %q", got)
	}
}

func TestFilename_EmptyNameFallsBack(t *testing.T) {
	got := Filename("///", FormatJSON)
	if got != "job-results.json" {
		t.Fatalf("expected job-results.json, got %q", got)
	}
}

func TestEncodeCSV_ColumnsFollowRuleOrder(t *testing.T) {
	rules := []model.Rule{
		{FieldName: "title", DisplayOrder: 1},
		{FieldName: "tags", IsList: true, DisplayOrder: 2},
	}
	results := []model.ResultRecord{
		{
			URL:       "https://example.com/a",
			Data:      map[string]any{"title": "First", "tags": []string{"go", "web"}},
			ScrapedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			URL:       "https://example.com/b",
			Data:      map[string]any{"title": "Second"},
			ScrapedAt: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC),
		},
	}

	out, err := Encode(FormatCSV, rules, results)
	if err != nil {
		t.Fatalf("expected csv encode to succeed, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "url,scraped_at,title,tags" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "go; web") {
		t.Fatalf("expected list values joined with semicolons, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], ",Second,") {
		t.Fatalf("expected missing field to encode as empty cell, got %q", lines[2])
	}
}

func TestEncodeJSON_MarshalsRecords(t *testing.T) {
	results := []model.ResultRecord{
		{URL: "https://example.com", Data: map[string]any{"title": "Only"}},
	}
	out, err := Encode(FormatJSON, nil, results)
	if err != nil {
		t.Fatalf("expected json encode to succeed, got %v", err)
	}
	if !strings.Contains(string(out), `"title": "Only"`) {
		t.Fatalf("expected data fields in json output, got %s", out)
	}
}
