package metricscalculator

import "errors"

// WordPair is a reference word and the hypothesis word that replaced it.
type WordPair struct {
	Reference  string `json:"reference"`
	Hypothesis string `json:"hypothesis"`
}

// ErrorAnalysis lists the individual word errors of one alignment.
type ErrorAnalysis struct {
	Substitutions []WordPair `json:"substitutions"`
	Deletions     []string   `json:"deletions"`
	Insertions    []string   `json:"insertions"`
}

// AnalyzeErrors normalizes both texts and lists which words were substituted,
// deleted and inserted, using the same alignment and tie-break as
// CalculateErrorRates, so the list lengths match its S/D/I counts.
func AnalyzeErrors(reference, hypothesis string) ErrorAnalysis {
	refTokens := Normalize(reference)
	hypTokens := Normalize(hypothesis)
	ref, hyp := internTokens(refTokens, hypTokens)

	analysis := ErrorAnalysis{}
	walkAlignment(ref, hyp, func(op editOp, i, j int) {
		switch op {
		case opSub:
			analysis.Substitutions = append(analysis.Substitutions, WordPair{Reference: refTokens[i], Hypothesis: hypTokens[j]})
		case opDel:
			analysis.Deletions = append(analysis.Deletions, refTokens[i])
		case opIns:
			analysis.Insertions = append(analysis.Insertions, hypTokens[j])
		}
	})
	return analysis
}

// BatchResult aggregates scores over several reference/hypothesis pairs.
type BatchResult struct {
	// Corpus-level rates: total edits over total reference length.
	OverallWER float64 `json:"overall_wer"`
	OverallCER float64 `json:"overall_cer"`
	// Unweighted means of the per-pair rates.
	AvgWER float64 `json:"avg_wer"`
	AvgCER float64 `json:"avg_cer"`

	TotalWords int           `json:"total_words"`
	Scored     int           `json:"scored"`
	Skipped    int           `json:"skipped"` // pairs with an empty reference
	Individual []ScoreResult `json:"individual"`
}

// ErrBatchLengthMismatch is returned when references and hypotheses differ in count.
var ErrBatchLengthMismatch = errors.New("number of references and hypotheses must match")

// CalculateBatch scores every pair. Pairs whose reference is empty are skipped
// and counted; if every pair is skipped the result is ErrEmptyReference.
func CalculateBatch(references, hypotheses []string) (BatchResult, error) {
	if len(references) != len(hypotheses) {
		return BatchResult{}, ErrBatchLengthMismatch
	}

	var (
		res        BatchResult
		wordErrors int
		charErrors int
		totalChars int
		sumWER     float64
		sumCER     float64
	)
	for i := range references {
		score, err := CalculateErrorRates(references[i], hypotheses[i])
		if errors.Is(err, ErrEmptyReference) {
			res.Skipped++
			continue
		}
		res.Individual = append(res.Individual, score)
		res.TotalWords += score.ReferenceLength
		wordErrors += score.Substitutions + score.Deletions + score.Insertions
		charErrors += score.CharErrors
		totalChars += score.CharReferenceLength
		sumWER += score.WER
		sumCER += score.CER
	}

	res.Scored = len(res.Individual)
	if res.Scored == 0 {
		return res, ErrEmptyReference
	}
	res.OverallWER = float64(wordErrors) / float64(res.TotalWords)
	res.OverallCER = float64(charErrors) / float64(totalChars)
	res.AvgWER = sumWER / float64(res.Scored)
	res.AvgCER = sumCER / float64(res.Scored)
	return res, nil
}
