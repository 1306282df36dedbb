package metricscalculator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ErrEmptyReference is returned when the reference normalizes to nothing.
// The error rate is undefined in that case; callers must not report it as 0.
var ErrEmptyReference = errors.New("reference is empty after normalization, error rate is undefined")

// unitCosts are the edit costs of the word alignment. Matches compares the
// interned token runes produced by internTokens.
var unitCosts = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Alignment holds the edit counts of a minimum-cost alignment between a
// reference sequence and a hypothesis sequence.
type Alignment struct {
	Hits          int
	Substitutions int
	Deletions     int
	Insertions    int
}

// Errors is S + D + I, which equals the edit distance.
func (a Alignment) Errors() int {
	return a.Substitutions + a.Deletions + a.Insertions
}

// ScoreResult is the outcome of scoring one hypothesis against one reference.
type ScoreResult struct {
	WER float64 `json:"wer"`
	CER float64 `json:"cer"`

	Hits             int `json:"hits"`
	Substitutions    int `json:"substitutions"`
	Deletions        int `json:"deletions"`
	Insertions       int `json:"insertions"`
	ReferenceLength  int `json:"reference_length"`
	HypothesisLength int `json:"hypothesis_length"`

	CharErrors          int `json:"char_errors"`
	CharReferenceLength int `json:"char_reference_length"`
}

// Accuracy is the fraction of reference words recognised correctly.
func (r ScoreResult) Accuracy() float64 {
	if r.ReferenceLength == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.ReferenceLength)
}

// CalculateErrorRates normalizes both texts and computes WER and CER.
//
// WER = (S + D + I) / reference words. CER is the same over the runes of the
// normalized reference (tokens joined by single spaces). An empty normalized
// reference yields ErrEmptyReference; an empty hypothesis against a non-empty
// reference scores 1.0 (everything deleted).
func CalculateErrorRates(reference, hypothesis string) (ScoreResult, error) {
	refTokens := Normalize(reference)
	hypTokens := Normalize(hypothesis)
	if len(refTokens) == 0 {
		return ScoreResult{}, ErrEmptyReference
	}

	words := Align(refTokens, hypTokens)

	refChars := []rune(strings.Join(refTokens, " "))
	hypChars := []rune(strings.Join(hypTokens, " "))
	charErrors := runeDistance(refChars, hypChars)

	return ScoreResult{
		WER:                 float64(words.Errors()) / float64(len(refTokens)),
		CER:                 float64(charErrors) / float64(len(refChars)),
		Hits:                words.Hits,
		Substitutions:       words.Substitutions,
		Deletions:           words.Deletions,
		Insertions:          words.Insertions,
		ReferenceLength:     len(refTokens),
		HypothesisLength:    len(hypTokens),
		CharErrors:          charErrors,
		CharReferenceLength: len(refChars),
	}, nil
}

// CalculateWER calculates the Word Error Rate (WER).
// WER = (Substitutions + Insertions + Deletions) / Number of words in reference
func CalculateWER(groundTruth string, recognizedText string) (float64, error) {
	res, err := CalculateErrorRates(groundTruth, recognizedText)
	if err != nil {
		return 0, fmt.Errorf("cannot calculate WER: %w", err)
	}
	return res.WER, nil
}

// CalculateCER calculates the Character Error Rate (CER).
// CER = (Substitutions + Insertions + Deletions) / Number of characters in reference
func CalculateCER(groundTruth string, recognizedText string) (float64, error) {
	res, err := CalculateErrorRates(groundTruth, recognizedText)
	if err != nil {
		return 0, fmt.Errorf("cannot calculate CER: %w", err)
	}
	return res.CER, nil
}

// Align computes a minimum-edit alignment between already-normalized token
// sequences and returns its operation counts.
func Align(reference, hypothesis []string) Alignment {
	ref, hyp := internTokens(reference, hypothesis)
	return alignRunes(ref, hyp)
}

// internTokens maps every distinct token to its own rune so the rune-based
// levenshtein matrix can run over words.
func internTokens(reference, hypothesis []string) ([]rune, []rune) {
	ids := make(map[string]rune, len(reference)+len(hypothesis))
	intern := func(tokens []string) []rune {
		out := make([]rune, len(tokens))
		for i, tok := range tokens {
			id, ok := ids[tok]
			if !ok {
				id = rune(len(ids) + 1)
				ids[tok] = id
			}
			out[i] = id
		}
		return out
	}
	return intern(reference), intern(hypothesis)
}

// runeDistance is the unit-cost edit distance kept in two rows. CER needs only
// the distance, and a full matrix over the characters of a multi-minute
// transcript does not fit in memory.
func runeDistance(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			sub := prev[j-1]
			if a[i-1] != b[j-1] {
				sub++
			}
			curr[j] = min(sub, prev[j]+1, curr[j-1]+1)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func alignRunes(reference, hypothesis []rune) Alignment {
	var a Alignment
	walkAlignment(reference, hypothesis, func(op editOp, i, j int) {
		switch op {
		case opHit:
			a.Hits++
		case opSub:
			a.Substitutions++
		case opDel:
			a.Deletions++
		case opIns:
			a.Insertions++
		}
	})
	return a
}

type editOp int

const (
	opHit editOp = iota
	opSub
	opDel
	opIns
)

// walkAlignment backtraces the levenshtein matrix from the bottom-right cell
// and reports each step in reference order. i indexes reference (-1 for an
// insertion), j indexes hypothesis (-1 for a deletion).
//
// Tie-break, when several minimum-cost paths exist: take the diagonal step
// (hit or substitution) whenever it is consistent with the cell cost, else a
// deletion, else an insertion. Paths using substitutions win over equal-cost
// paths made of deletions and insertions ("a b" -> "b c" scores S=2, not
// D=1 I=1 plus a hit), and the S/D/I split is reproducible.
func walkAlignment(reference, hypothesis []rune, visit func(op editOp, i, j int)) {
	matrix := levenshtein.MatrixForStrings(reference, hypothesis, unitCosts)

	type step struct {
		op   editOp
		i, j int
	}
	steps := make([]step, 0, len(reference)+len(hypothesis))

	i, j := len(reference), len(hypothesis)
	for i > 0 || j > 0 {
		cost := matrix[i][j]
		if i > 0 && j > 0 {
			same := reference[i-1] == hypothesis[j-1]
			diag := matrix[i-1][j-1]
			if same && diag == cost {
				steps = append(steps, step{opHit, i - 1, j - 1})
				i, j = i-1, j-1
				continue
			}
			if !same && diag+unitCosts.SubCost == cost {
				steps = append(steps, step{opSub, i - 1, j - 1})
				i, j = i-1, j-1
				continue
			}
		}
		if i > 0 && matrix[i-1][j]+unitCosts.DelCost == cost {
			steps = append(steps, step{opDel, i - 1, -1})
			i--
			continue
		}
		steps = append(steps, step{opIns, -1, j - 1})
		j--
	}

	for k := len(steps) - 1; k >= 0; k-- {
		visit(steps[k].op, steps[k].i, steps[k].j)
	}
}
