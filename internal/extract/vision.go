package extract

import (
	"context"
	"regexp"
	"strings"

	"scrapeforge/internal/breaker"
	"scrapeforge/internal/llm"
)

// VisionResult is the output of the OCR fallback: the raw text, one
// region per text line, and best-effort structured data harvested from
// the lines.
type VisionResult struct {
	Text           string         `json:"text"`
	Regions        []Region       `json:"regions"`
	StructuredData map[string]any `json:"structuredData"`
}

// Region is one line of recognised text. Bucket is the vertical
// position: with line-oriented OCR output each line is its own bucket.
type Region struct {
	Text   string `json:"text"`
	Bucket int    `json:"bucket"`
}

// VisionExtractor produces a VisionResult from a PNG screenshot. The
// extractor is optional; the pipeline treats its absence as "no vision
// configured", not as an error.
type VisionExtractor interface {
	ExtractImage(ctx context.Context, png []byte) (*VisionResult, error)
}

var (
	kvColonRe  = regexp.MustCompile(`^([\w][\w\s]{0,48}?)\s*:\s*(.+)$`)
	kvEqualsRe = regexp.MustCompile(`^([\w][\w\s]{0,48}?)\s*=\s*(.+)$`)
	kvDashRe   = regexp.MustCompile(`^([\w][\w\s]{0,48}?)\s+-\s+(.+)$`)
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	cellSepRe  = regexp.MustCompile(`\s{2,}|\s*\|\s*`)
)

// ParseVisionText turns OCR text into regions and structured data.
// Key/value lines ("Key: Value", "Key = Value", "Key - Value") become
// fields; bullet and numbered lines collect under "_list"; runs of
// multi-cell lines (cells split on pipes or wide gaps) collect under
// "_table"; the full text is kept under "_ocr_text".
func ParseVisionText(text string) *VisionResult {
	res := &VisionResult{
		Text:           text,
		StructuredData: make(map[string]any),
	}
	if strings.TrimSpace(text) == "" {
		return res
	}
	res.StructuredData["_ocr_text"] = text

	var list []string
	var table [][]string

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimRight(rawLine, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		res.Regions = append(res.Regions, Region{Text: trimmed, Bucket: len(res.Regions)})

		if m := bulletRe.FindStringSubmatch(line); m != nil {
			list = append(list, strings.TrimSpace(m[1]))
			continue
		}

		if key, value, ok := splitKeyValue(trimmed); ok {
			if _, exists := res.StructuredData[key]; !exists {
				res.StructuredData[key] = value
			}
			continue
		}

		if cells := splitCells(trimmed); len(cells) >= 2 {
			table = append(table, cells)
		}
	}

	if len(list) > 0 {
		res.StructuredData["_list"] = list
	}
	if len(table) >= 2 {
		res.StructuredData["_table"] = table
	}
	return res
}

func splitKeyValue(line string) (string, string, bool) {
	for _, re := range []*regexp.Regexp{kvColonRe, kvEqualsRe, kvDashRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			key := strings.TrimSpace(m[1])
			value := strings.TrimSpace(m[2])
			if key != "" && value != "" {
				return key, value, true
			}
		}
	}
	return "", "", false
}

func splitCells(line string) []string {
	parts := cellSepRe.Split(line, -1)
	cells := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// visionPrompt asks the model for a line-faithful transcription so the
// structured parse above has layout to work with.
const visionPrompt = `Transcribe all visible text in this screenshot, top to bottom.
Keep one line of output per visual line. Preserve "label: value" pairs exactly
as shown, keep list markers, and separate table columns with " | ".
Return only the transcription, no commentary.`

// LLMVision runs OCR through a vision-capable LLM behind a circuit
// breaker. When the breaker is open the extractor reports failure
// immediately instead of queueing on a struggling provider.
type LLMVision struct {
	client llm.Client
	cb     *breaker.Breaker
}

// NewLLMVision wraps client with the given breaker.
func NewLLMVision(client llm.Client, cb *breaker.Breaker) *LLMVision {
	return &LLMVision{client: client, cb: cb}
}

func (v *LLMVision) ExtractImage(ctx context.Context, png []byte) (*VisionResult, error) {
	text, err := breaker.Do(v.cb, func() (string, error) {
		return v.client.ExtractText(ctx, png, visionPrompt)
	})
	if err != nil {
		return nil, err
	}
	return ParseVisionText(text), nil
}
