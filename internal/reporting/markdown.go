package reporting

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
)

// WriteMarkdown writes the human-readable report: configuration, summary
// per speed, recommendation, per-file tables, top word errors and failures.
func WriteMarkdown(path string, records []evaluationengine.TestRecord, meta Meta) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	renderMarkdown(w, records, meta)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func renderMarkdown(w *bufio.Writer, records []evaluationengine.TestRecord, meta Meta) {
	summaries := Summarize(records)

	fmt.Fprintln(w, "# Audio Speed-Up Transcription Benchmark")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Generated: %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	if meta.RunID != "" {
		fmt.Fprintf(w, "Run ID: `%s`\n", meta.RunID)
	}
	fmt.Fprintln(w)

	ok, failed, undefined := countStatuses(records)
	speeds := make([]string, len(meta.Speeds))
	for i, s := range meta.Speeds {
		speeds[i] = speedLabel(s)
	}

	fmt.Fprintln(w, "## Configuration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Setting | Value |")
	fmt.Fprintln(w, "|---|---|")
	fmt.Fprintf(w, "| Backend | %s |\n", cell(meta.Backend))
	fmt.Fprintf(w, "| Model | %s |\n", cell(meta.Model))
	fmt.Fprintf(w, "| Speeds | %s |\n", strings.Join(speeds, ", "))
	fmt.Fprintf(w, "| Files | %d |\n", meta.Files)
	fmt.Fprintf(w, "| Tests | %d (%d ok, %d failed, %d undefined) |\n", len(records), ok, failed, undefined)
	fmt.Fprintf(w, "| WER threshold | %.2f |\n", meta.WERThreshold)
	fmt.Fprintf(w, "| Token pricing | $%.2f/M input, $%.2f/M output |\n", meta.Pricing.InputCostPerM, meta.Pricing.OutputCostPerM)
	fmt.Fprintf(w, "| Minute pricing | $%.4f/audio minute |\n", meta.Pricing.CostPerAudioMinute)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Summary by Speed")
	fmt.Fprintln(w)
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No results.")
	} else {
		fmt.Fprintln(w, "| Speed | Tests | OK | Failed | Undefined | Mean WER | WER Std | Mean CER | Corpus WER | Corpus CER | Duration Reduction | Processing Time (s) | Total Cost ($) | Cost Savings |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|---|---|---|---|---|")
		for _, s := range summaries {
			wer, std, cer := "undefined", "undefined", "undefined"
			corpusWER, corpusCER := "undefined", "undefined"
			if s.Scored() {
				wer, std, cer = fmt.Sprintf("%.4f", s.MeanWER), fmt.Sprintf("%.4f", s.StdWER), fmt.Sprintf("%.4f", s.MeanCER)
				corpusWER, corpusCER = fmt.Sprintf("%.4f", s.CorpusWER), fmt.Sprintf("%.4f", s.CorpusCER)
			}
			fmt.Fprintf(w, "| %s | %d | %d | %d | %d | %s | %s | %s | %s | %s | %.1f%% | %.2f | %.4f | %.1f%% |\n",
				speedLabel(s.Speed), s.Tests, s.OK, s.Failed, s.Undefined, wer, std, cer, corpusWER, corpusCER,
				s.MeanDurationReduction, s.MeanProcessingTime, s.TotalCost, s.MeanCostSavings)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Recommendation")
	fmt.Fprintln(w)
	if best, found := Recommend(summaries, meta.WERThreshold); found {
		fmt.Fprintf(w, "Use **%s**: mean WER %.4f is below the %.2f threshold with %.1f%% mean cost savings.\n",
			speedLabel(best.Speed), best.MeanWER, meta.WERThreshold, best.MeanCostSavings)
	} else {
		fmt.Fprintf(w, "No speed met the WER threshold of %.2f.\n", meta.WERThreshold)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "## Results by File")
	fmt.Fprintln(w)
	for _, file := range fileOrder(records) {
		fmt.Fprintf(w, "### %s\n\n", file)
		fmt.Fprintln(w, "| Speed | Status | WER | CER | Duration (s) | Processing Time (s) | Cost ($) | Savings |")
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|")
		for _, r := range records {
			if r.File != file {
				continue
			}
			fmt.Fprintf(w, "| %s | %s | %s | %s | %.1f | %.2f | %.4f | %.1f%% |\n",
				speedLabel(r.Speed), r.Status, rateOrUndefined(r.WER), rateOrUndefined(r.CER),
				r.ProcessedDuration, r.ProcessingTime, r.Cost, r.CostSavings)
		}
		fmt.Fprintln(w)
	}

	renderTopErrors(w, records)

	fmt.Fprintln(w, "## Failures")
	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "No failures.")
		return
	}
	fmt.Fprintln(w, "| File | Speed | Error |")
	fmt.Fprintln(w, "|---|---|---|")
	for _, r := range records {
		if r.Status == evaluationengine.StatusFailed {
			fmt.Fprintf(w, "| %s | %s | %s |\n", cell(r.File), speedLabel(r.Speed), cell(r.Error))
		}
	}
}

// topErrorLimit caps each list in the Top Errors section.
const topErrorLimit = 10

type errorCount struct {
	label string
	count int
}

// renderTopErrors lists the most frequent substitutions, deletions and
// insertions per speed, over every record that carries an error analysis.
func renderTopErrors(w *bufio.Writer, records []evaluationengine.TestRecord) {
	fmt.Fprintln(w, "## Top Errors")
	fmt.Fprintln(w)

	var speeds []float64
	bySpeed := map[float64][]evaluationengine.TestRecord{}
	for _, r := range records {
		if r.ErrorAnalysis == nil {
			continue
		}
		if _, ok := bySpeed[r.Speed]; !ok {
			speeds = append(speeds, r.Speed)
		}
		bySpeed[r.Speed] = append(bySpeed[r.Speed], r)
	}
	if len(speeds) == 0 {
		fmt.Fprintln(w, "No word errors recorded.")
		fmt.Fprintln(w)
		return
	}
	sort.Float64s(speeds)

	for _, speed := range speeds {
		subs, dels, ins := map[string]int{}, map[string]int{}, map[string]int{}
		for _, r := range bySpeed[speed] {
			for _, p := range r.ErrorAnalysis.Substitutions {
				subs[p.Reference+" -> "+p.Hypothesis]++
			}
			for _, d := range r.ErrorAnalysis.Deletions {
				dels[d]++
			}
			for _, i := range r.ErrorAnalysis.Insertions {
				ins[i]++
			}
		}

		fmt.Fprintf(w, "### %s\n\n", speedLabel(speed))
		if len(subs)+len(dels)+len(ins) == 0 {
			fmt.Fprintln(w, "No word errors.")
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, "| Type | Words | Count |")
		fmt.Fprintln(w, "|---|---|---|")
		for _, kind := range []struct {
			name   string
			counts map[string]int
		}{{"substitution", subs}, {"deletion", dels}, {"insertion", ins}} {
			for _, e := range topCounts(kind.counts, topErrorLimit) {
				fmt.Fprintf(w, "| %s | %s | %d |\n", kind.name, cell(e.label), e.count)
			}
		}
		fmt.Fprintln(w)
	}
}

// topCounts returns the n most frequent labels, ties broken alphabetically.
func topCounts(counts map[string]int, n int) []errorCount {
	out := make([]errorCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, errorCount{label: label, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].label < out[j].label
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func countStatuses(records []evaluationengine.TestRecord) (ok, failed, undefined int) {
	for _, r := range records {
		switch r.Status {
		case evaluationengine.StatusOK:
			ok++
		case evaluationengine.StatusUndefined:
			undefined++
		default:
			failed++
		}
	}
	return ok, failed, undefined
}

func fileOrder(records []evaluationengine.TestRecord) []string {
	seen := map[string]bool{}
	var files []string
	for _, r := range records {
		if !seen[r.File] {
			seen[r.File] = true
			files = append(files, r.File)
		}
	}
	sort.Strings(files)
	return files
}

// cell makes s safe inside a table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
