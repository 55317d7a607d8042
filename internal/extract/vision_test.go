package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"scrapeforge/internal/breaker"
)

const ocrText = `Blue Widget
Price: $9.99
Stock = 12
Weight - 300g
- ships worldwide
- free returns
1. step one
Size | Color
S | Blue
M | Red`

func TestParseVisionText_KeyValues(t *testing.T) {
	res := ParseVisionText(ocrText)

	if res.StructuredData["Price"] != "$9.99" {
		t.Errorf("Price = %v", res.StructuredData["Price"])
	}
	if res.StructuredData["Stock"] != "12" {
		t.Errorf("Stock = %v", res.StructuredData["Stock"])
	}
	if res.StructuredData["Weight"] != "300g" {
		t.Errorf("Weight = %v", res.StructuredData["Weight"])
	}
	if res.StructuredData["_ocr_text"] != ocrText {
		t.Errorf("expected full text under _ocr_text")
	}
}

func TestParseVisionText_List(t *testing.T) {
	res := ParseVisionText(ocrText)

	list, ok := res.StructuredData["_list"].([]string)
	if !ok {
		t.Fatalf("expected _list, got %T", res.StructuredData["_list"])
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 list items, got %v", list)
	}
	if list[0] != "ships worldwide" || list[2] != "step one" {
		t.Fatalf("unexpected list items %v", list)
	}
}

func TestParseVisionText_Table(t *testing.T) {
	res := ParseVisionText(ocrText)

	table, ok := res.StructuredData["_table"].([][]string)
	if !ok {
		t.Fatalf("expected _table, got %T", res.StructuredData["_table"])
	}
	if len(table) != 3 {
		t.Fatalf("expected 3 rows, got %v", table)
	}
	if table[0][0] != "Size" || table[0][1] != "Color" {
		t.Fatalf("unexpected header row %v", table[0])
	}
	if table[2][1] != "Red" {
		t.Fatalf("unexpected cell %v", table[2])
	}
}

func TestParseVisionText_Regions(t *testing.T) {
	res := ParseVisionText("one\n\n  two  \nthree")
	if len(res.Regions) != 3 {
		t.Fatalf("expected 3 regions, got %v", res.Regions)
	}
	if res.Regions[1].Text != "two" || res.Regions[1].Bucket != 1 {
		t.Fatalf("unexpected region %+v", res.Regions[1])
	}
}

func TestParseVisionText_Empty(t *testing.T) {
	res := ParseVisionText("   \n  ")
	if len(res.Regions) != 0 {
		t.Fatalf("expected no regions, got %v", res.Regions)
	}
	if _, ok := res.StructuredData["_ocr_text"]; ok {
		t.Fatalf("expected no _ocr_text for blank input")
	}
}

type fakeVisionClient struct {
	text string
	err  error
}

func (f *fakeVisionClient) ExtractText(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

func visionTestBreaker() *breaker.Breaker {
	return breaker.New("vision_llm", breaker.Settings{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		HalfOpenMaxCalls: 1,
	})
}

func TestLLMVision_ExtractImage(t *testing.T) {
	v := NewLLMVision(&fakeVisionClient{text: "Price: $5.00"}, visionTestBreaker())

	res, err := v.ExtractImage(context.Background(), []byte("png"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StructuredData["Price"] != "$5.00" {
		t.Fatalf("expected parsed field, got %v", res.StructuredData)
	}
}

func TestLLMVision_BreakerOpens(t *testing.T) {
	client := &fakeVisionClient{err: errors.New("provider down")}
	v := NewLLMVision(client, visionTestBreaker())

	for i := 0; i < 2; i++ {
		if _, err := v.ExtractImage(context.Background(), nil); err == nil {
			t.Fatalf("expected provider error")
		}
	}

	_, err := v.ExtractImage(context.Background(), nil)
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("expected ErrOpen after threshold, got %v", err)
	}
}
