package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/rbarena/internal/soak"
	"github.com/Sumatoshi-tech/rbarena/pkg/config"
)

// ErrUnknownFormat is returned for report formats other than table, json and yaml.
var ErrUnknownFormat = errors.New("unknown report format")

const yamlIndent = 2

func encodeStructured(w io.Writer, format string, value any) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		return nil
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(yamlIndent)

		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderReport(w io.Writer, report *soak.Report, format string, noColor bool) error {
	if report == nil {
		return nil
	}

	if format != config.FormatTable {
		return encodeStructured(w, format, report)
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{
		"Tree", "Inserts", "Duplicates", "Deletes", "Misses", "Gets",
		"Peak", "Height", "Slots", "Rotations", "Relocations", "Drained",
	})

	for _, tr := range report.Trees {
		tbl.AppendRow(table.Row{
			tr.Tree, tr.Counts.Inserts, tr.Counts.Duplicates, tr.Counts.Deletes, tr.Counts.Misses,
			tr.Counts.Hits + tr.Counts.GetMisses, tr.PeakLen, tr.Height, tr.Slots,
			tr.Rotations, tr.Relocations, strconv.FormatBool(tr.Drained),
		})
	}

	totals := report.Totals
	tbl.AppendFooter(table.Row{
		"Total", totals.Inserts, totals.Duplicates, totals.Deletes, totals.Misses,
		totals.Hits + totals.GetMisses, "", "", "", "", "", "",
	})

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	status := color.New(color.FgGreen, color.Bold)
	verdict := "PASS"

	if !report.Passed {
		status = color.New(color.FgRed, color.Bold)
		verdict = "FAIL"
	}

	if noColor {
		status.DisableColor()
	}

	_, err := status.Fprintf(w, "%s: %s ops in %.2fs (%s ops/s), %s validations, %s hibernations, heap peak %s, codec %s\n",
		verdict,
		humanize.Comma(totals.Ops()),
		report.DurationSeconds,
		humanize.CommafWithDigits(report.OpsPerSecond, 0),
		humanize.Comma(totals.Validations),
		humanize.Comma(totals.Hibernations),
		report.HeapPeak(),
		report.Compression,
	)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	for _, tr := range report.Trees {
		if tr.Error != "" {
			color.New(color.FgYellow).Fprintf(w, "tree %d: %s\n", tr.Tree, tr.Error) //nolint:errcheck // best-effort diagnostics.
		}
	}

	return nil
}

func renderBench(w io.Writer, results []soak.BenchResult, format string) error {
	if format != config.FormatTable {
		return encodeStructured(w, format, results)
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Phase", "Ops", "ns/op", "Rotations", "Relocations"})

	for _, res := range results {
		tbl.AppendRow(table.Row{
			res.Phase, humanize.Comma(int64(res.Ops)), fmt.Sprintf("%.1f", res.NsPerOp), res.Rotations, res.Relocations,
		})
	}

	if _, err := fmt.Fprintln(w, tbl.Render()); err != nil {
		return fmt.Errorf("write bench results: %w", err)
	}

	return nil
}
