package main

import (
	"strings"
	"testing"

	"cardpress/internal/api"
)

func TestBuildQueueListRows(t *testing.T) {
	jobs := []api.QueueJob{
		{
			ID:           7,
			CardName:     "Black Lotus",
			Status:       "completed",
			AttemptCount: 1,
			CreatedAt:    "2026-08-30T10:00:00.000Z",
		},
		{
			ID:              9,
			CardName:        "Mox Ruby",
			Status:          "quarantined",
			AttemptCount:    4,
			NeedsAttention:  true,
			AttentionReason: "invalid image",
			ErrorMessage:    "decode image: unknown format",
			CreatedAt:       "2026-08-30T10:05:00.000Z",
		},
	}

	rows := buildQueueListRows(jobs)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "7" || rows[0][1] != "Black Lotus" || rows[0][2] != "completed" {
		t.Fatalf("unexpected first row: %#v", rows[0])
	}
	if rows[1][2] != "quarantined (!)" {
		t.Fatalf("expected attention marker, got %q", rows[1][2])
	}
	if rows[1][5] != "decode image: unknown format" {
		t.Fatalf("expected error message column, got %q", rows[1][5])
	}
}

func TestParseJobIDs(t *testing.T) {
	ids, err := parseJobIDs([]string{"3", "12"})
	if err != nil {
		t.Fatalf("parseJobIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 12 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	if _, err := parseJobIDs([]string{"abc"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
	if _, err := parseJobIDs([]string{"0"}); err == nil {
		t.Fatal("expected error for non-positive id")
	}
}

func TestRenderTableIncludesHeaders(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Card"},
		[][]string{{"1", "Forest"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	if !strings.Contains(out, "ID") || !strings.Contains(out, "Forest") {
		t.Fatalf("unexpected table output:\n%s", out)
	}
}
