package core_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/JonMunkholm/repsync/internal/core"
)

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		shape      core.Shape
		wantReason string
	}{
		{"empty", "", core.ShapeHeadquarters, "empty file"},
		{"whitespace only", " \r\n\t", core.ShapeHeadquarters, "empty file"},
		{"no header", "a;b;c\n1;2;3\n", core.ShapeHeadquarters, "no header row"},
		{"services header on headquarters shape", "serv_codigo;serv_nombre\n329;x\n", core.ShapeHeadquarters, "no header row"},
		{"unregistered shape", hqExport, core.Shape("pharmacies"), "unknown shape"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Extract(context.Background(), strings.NewReader(tt.input), "f.csv", tt.shape)
			var extErr *core.ExtractionError
			if !errors.As(err, &extErr) {
				t.Fatalf("error = %v, want ExtractionError", err)
			}
			if extErr.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", extErr.Reason, tt.wantReason)
			}
			if extErr.File != "f.csv" {
				t.Errorf("file = %q", extErr.File)
			}
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := core.Extract(ctx, strings.NewReader(hqExport), "sedes.csv", core.ShapeHeadquarters)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestExtract_SkipsTitleRowsAndBlankLines(t *testing.T) {
	input := "Reporte de sedes\nGenerado 2026-01-01\n" + hqExport + "\n;;\n"
	ext, err := core.Extract(context.Background(), strings.NewReader(input), "sedes.csv", core.ShapeHeadquarters)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ext.Format != "delimited" || ext.Encoding != "utf-8" {
		t.Errorf("format %q encoding %q", ext.Format, ext.Encoding)
	}
	if len(ext.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(ext.Rows))
	}
	if ext.Rows[0].Line != 4 {
		t.Errorf("first data line = %d, want 4", ext.Rows[0].Line)
	}
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("codigo_habilitacion;numero_sede;nombre_sede\n")
	for i := 1; i <= 250; i++ {
		b.WriteString("110012345678;")
		b.WriteString(strconv.Itoa(i))
		b.WriteString(";Sede\n")
	}
	ext, err := core.Extract(context.Background(), strings.NewReader(b.String()), "sedes.csv", core.ShapeHeadquarters)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	n := core.Normalizer{Context: core.NormalizeContext{OrganizationCode: orgCode}, Workers: 8}
	batch, err := n.NormalizeAll(context.Background(), ext)
	if err != nil {
		t.Fatalf("NormalizeAll: %v", err)
	}
	if len(batch.Locations) != 250 {
		t.Fatalf("locations = %d, want 250", len(batch.Locations))
	}
	for i, d := range batch.Locations {
		if want := orgCode + "_" + strconv.Itoa(i+1); d.Location.NaturalKey != want {
			t.Fatalf("location %d key = %q, want %q", i, d.Location.NaturalKey, want)
		}
	}
}
