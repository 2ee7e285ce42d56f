// Copyright (c) 2025 CohortIQ
// Licensed under the MIT License. See LICENSE file in the project root for details.

package schema

import (
	"context"
	"strings"
	"testing"
	"time"
)

func testSnapshotter(builds *int) *Snapshotter {
	s := &Snapshotter{tables: []string{"students"}, sampleRows: 10}
	s.build = func(ctx context.Context) (*Snapshot, error) {
		*builds++
		tables := []Table{{
			Name: "students",
			Columns: []Column{
				{Name: "id", DataType: "integer"},
				{Name: "name", DataType: "text", Nullable: true},
			},
			ForeignKeys: []ForeignKey{{Column: "bootcamp_id", RefTable: "bootcamps", RefColumn: "id"}},
			Samples:     []map[string]any{{"id": 1, "name": "Ada"}},
		}}
		return &Snapshot{Tables: tables, BuiltAt: time.Now(), text: renderText(tables)}, nil
	}
	return s
}

func TestSnapshotCaching(t *testing.T) {
	ctx := context.Background()
	builds := 0
	s := testSnapshotter(&builds)

	first, err := s.Snapshot(ctx, false)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	second, err := s.Snapshot(ctx, false)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if builds != 1 {
		t.Errorf("builds = %d, want 1 (cached)", builds)
	}
	if first != second {
		t.Error("cached call returned a different snapshot")
	}

	third, err := s.Snapshot(ctx, true)
	if err != nil {
		t.Fatalf("Snapshot(force) error: %v", err)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want 2 after force refresh", builds)
	}
	if third == second {
		t.Error("force refresh returned the old snapshot value")
	}
	if third.Text() != second.Text() {
		t.Error("unchanged schema should render identical text after refresh")
	}
}

func TestRenderText(t *testing.T) {
	tables := []Table{
		{
			Name: "grades",
			Columns: []Column{
				{Name: "student_id", DataType: "integer"},
				{Name: "score", DataType: "numeric", Nullable: true},
			},
			ForeignKeys: []ForeignKey{{Column: "student_id", RefTable: "students", RefColumn: "id"}},
			Samples:     []map[string]any{{"student_id": 7, "score": 91.5}},
		},
		{
			Name:    "bootcamps",
			Columns: []Column{{Name: "id", DataType: "integer"}},
		},
	}

	text := renderText(tables)

	for _, want := range []string{
		"TABLE grades",
		"COLUMNS: student_id integer, score numeric NULL",
		"FKs: student_id -> students.id",
		`"student_id":7`,
		"TABLE bootcamps",
		"FKs: None",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("renderText() missing %q in:\n%s", want, text)
		}
	}
}

func TestJSONSafe(t *testing.T) {
	uuid := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	if got := jsonSafe(uuid); got != "12345678-9abc-def0-1234-56789abcdef0" {
		t.Errorf("jsonSafe(uuid) = %v", got)
	}
	if got := jsonSafe([]byte{0xde, 0xad}); got != `\xdead` {
		t.Errorf("jsonSafe(bytes) = %v", got)
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := jsonSafe(ts); got != "2025-03-01T12:00:00Z" {
		t.Errorf("jsonSafe(time) = %v", got)
	}
	if got := jsonSafe(42); got != 42 {
		t.Errorf("jsonSafe(int) = %v", got)
	}
}
