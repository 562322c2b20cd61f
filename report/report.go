// Package report renders benchmark results into a markdown comparison
// document.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nao1215/markdown"
	"github.com/samber/lo"

	"github.com/icefree/TriRPC-Lab/scenario"
)

// ClientReport is one runner's name and its ordered results.
type ClientReport struct {
	Name    string            `json:"client"`
	Results []scenario.Result `json:"results"`
}

// Generate writes the markdown document: a timestamp header, one
// section per client, and a cross-client speed comparison when exactly
// two clients are present.
func Generate(
	w io.Writer,
	generatedAt time.Time,
	reports []ClientReport,
) error {
	if len(reports) == 0 {
		return fmt.Errorf("no results to report")
	}

	md := markdown.NewMarkdown(w)
	md.H1("Client Library Benchmark")
	md.PlainText("Generated: " + generatedAt.UTC().Format(time.RFC3339))

	for _, rep := range reports {
		addClientSection(md, rep)
	}

	if len(reports) == 2 {
		addComparison(md, reports[0], reports[1])
	}

	return md.Build()
}

func addClientSection(md *markdown.Markdown, rep ClientReport) {
	rows := make([][]string, 0, len(rep.Results))

	for _, res := range rep.Results {
		detail := res.Error
		if res.Success {
			out, err := json.Marshal(res.Output)
			if err != nil {
				detail = fmt.Sprintf("unprintable output: %v", err)
			} else {
				detail = string(out)
			}
		}

		rows = append(rows, []string{
			string(res.ID),
			statusLabel(res.Success),
			formatMs(res.DurationMs),
			detail,
		})
	}

	passed := lo.CountBy(rep.Results,
		func(r scenario.Result) bool { return r.Success })
	totalMs := lo.SumBy(rep.Results,
		func(r scenario.Result) int64 { return r.DurationMs })

	md.H2(rep.Name)
	md.Table(markdown.TableSet{
		Header: []string{"Scenario", "Status", "Duration", "Output / Error"},
		Rows:   rows,
	})
	md.PlainText(fmt.Sprintf("**%d passed**, **%d failed**, total %s",
		passed, len(rep.Results)-passed, formatMs(totalMs)))
}

// addComparison matches rows by scenario id, not list position, so a
// runner that omits or reorders a scenario cannot shift every row
// after it. A scenario missing on one side renders n/a with no winner.
func addComparison(md *markdown.Markdown, a, b ClientReport) {
	byID := lo.KeyBy(b.Results,
		func(r scenario.Result) scenario.ID { return r.ID })

	rows := make([][]string, 0, len(a.Results))

	for _, ra := range a.Results {
		rb, ok := byID[ra.ID]
		if !ok {
			rows = append(rows, []string{
				string(ra.ID), formatMs(ra.DurationMs), "n/a", "-",
			})

			continue
		}

		rows = append(rows, []string{
			string(ra.ID),
			formatMs(ra.DurationMs),
			formatMs(rb.DurationMs),
			winner(a.Name, b.Name, ra.DurationMs, rb.DurationMs),
		})
	}

	md.H2("Speed Comparison")
	md.Table(markdown.TableSet{
		Header: []string{"Scenario", a.Name, b.Name, "Winner"},
		Rows:   rows,
	})
}

func winner(nameA, nameB string, a, b int64) string {
	switch {
	case a == b:
		return "tie"
	case a < b:
		return nameA
	default:
		return nameB
	}
}

func statusLabel(success bool) string {
	if success {
		return "PASS"
	}

	return "FAIL"
}

func formatMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}

	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}

// GenerateJSON writes the raw results as indented JSON to w.
func GenerateJSON(w io.Writer, reports []ClientReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(reports)
}

// WriteFile renders the markdown document to path.
func WriteFile(
	path string,
	generatedAt time.Time,
	reports []ClientReport,
) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}

	if err := Generate(f, generatedAt, reports); err != nil {
		f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", path, err)
	}

	return nil
}
