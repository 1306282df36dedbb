package reporting

import (
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"gpt4o-speed-bench/internal/coreengine/evaluationengine"
	"gpt4o-speed-bench/internal/coreengine/metricscalculator"
)

// SpeedSummary aggregates every record produced at one speed factor.
// WER/CER statistics cover scored records only; time, cost and duration
// statistics cover every record that got a transcription (ok or undefined).
type SpeedSummary struct {
	Speed     float64 `json:"speed"`
	Tests     int     `json:"tests"`
	OK        int     `json:"ok"`
	Failed    int     `json:"failed"`
	Undefined int     `json:"undefined"`

	MeanWER float64 `json:"mean_wer"`
	StdWER  float64 `json:"std_wer"`
	MeanCER float64 `json:"mean_cer"`
	StdCER  float64 `json:"std_cer"`
	// Corpus rates: total edits over total reference length at this speed,
	// so long files weigh more than short ones.
	CorpusWER float64 `json:"corpus_wer"`
	CorpusCER float64 `json:"corpus_cer"`

	MeanDurationReduction float64 `json:"mean_duration_reduction"`
	MeanProcessingTime    float64 `json:"mean_processing_time"`
	MeanCostSavings       float64 `json:"mean_cost_savings"`
	TotalCost             float64 `json:"total_cost"`
}

// Scored reports whether any record at this speed has a WER.
func (s SpeedSummary) Scored() bool { return s.OK > 0 }

// Summarize groups records by speed, ascending.
func Summarize(records []evaluationengine.TestRecord) []SpeedSummary {
	bySpeed := make(map[float64][]evaluationengine.TestRecord)
	for _, r := range records {
		bySpeed[r.Speed] = append(bySpeed[r.Speed], r)
	}

	summaries := make([]SpeedSummary, 0, len(bySpeed))
	for speed, group := range bySpeed {
		summaries = append(summaries, summarizeSpeed(speed, group))
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Speed < summaries[j].Speed })
	return summaries
}

func summarizeSpeed(speed float64, group []evaluationengine.TestRecord) SpeedSummary {
	s := SpeedSummary{Speed: speed, Tests: len(group)}

	var wers, cers, reductions, times, savings []float64
	var references, hypotheses []string
	for _, r := range group {
		switch r.Status {
		case evaluationengine.StatusOK:
			s.OK++
		case evaluationengine.StatusUndefined:
			s.Undefined++
		default:
			s.Failed++
			continue
		}
		if r.Scored() {
			references = append(references, r.Reference)
			hypotheses = append(hypotheses, r.Hypothesis)
			wers = append(wers, *r.WER)
			if r.CER != nil {
				cers = append(cers, *r.CER)
			}
		}
		reductions = append(reductions, r.DurationReduction)
		times = append(times, r.ProcessingTime)
		savings = append(savings, r.CostSavings)
		s.TotalCost += r.Cost
	}

	s.MeanWER, s.StdWER = meanStdDev(wers)
	s.MeanCER, s.StdCER = meanStdDev(cers)
	s.MeanDurationReduction, _ = meanStdDev(reductions)
	s.MeanProcessingTime, _ = meanStdDev(times)
	s.MeanCostSavings, _ = meanStdDev(savings)
	if batch, err := metricscalculator.CalculateBatch(references, hypotheses); err == nil {
		s.CorpusWER, s.CorpusCER = batch.OverallWER, batch.OverallCER
	}
	return s
}

// meanStdDev is stat.MeanStdDev with 0 for empty input and a zero
// deviation for a single sample.
func meanStdDev(x []float64) (mean, std float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}

// Recommend picks, among scored speeds whose mean WER is below threshold,
// the one with the highest mean cost savings. Ties go to the lower mean
// WER, then the lower speed. ok is false when no speed qualifies.
func Recommend(summaries []SpeedSummary, threshold float64) (best SpeedSummary, ok bool) {
	for _, s := range summaries {
		if !s.Scored() || s.MeanWER >= threshold {
			continue
		}
		if !ok || better(s, best) {
			best, ok = s, true
		}
	}
	return best, ok
}

func better(a, b SpeedSummary) bool {
	if a.MeanCostSavings != b.MeanCostSavings {
		return a.MeanCostSavings > b.MeanCostSavings
	}
	if a.MeanWER != b.MeanWER {
		return a.MeanWER < b.MeanWER
	}
	return a.Speed < b.Speed
}

// speedLabel renders 2 as "2.0x" and 1.25 as "1.25x".
func speedLabel(speed float64) string {
	s := strconv.FormatFloat(speed, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "x"
}
