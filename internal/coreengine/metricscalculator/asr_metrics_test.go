package metricscalculator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "lowercase and punctuation", in: "Hello, World!", want: []string{"hello", "world"}},
		{name: "punctuation removed not replaced", in: "don't well-known", want: []string{"dont", "wellknown"}},
		{name: "whitespace collapsed", in: "  a\t\tb \n\n c  ", want: []string{"a", "b", "c"}},
		{name: "digits kept", in: "Chapter 12: The End.", want: []string{"chapter", "12", "the", "end"}},
		{name: "unicode letters kept", in: "Café  NAÏVE—Über", want: []string{"café", "naïveüber"}},
		{name: "only punctuation", in: "?!... --", want: []string{}},
		{name: "empty", in: "", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"The Quick, Brown FOX jumps over the lazy dog!!",
		"  multiple   spaces\tand\nnewlines ",
		"Mr. O'Neil paid $3.50 (approx.) for 2 coffees; 'twas fine.",
		"ΟΔΟΣ Straße İstanbul ǅemal",
		"é combining accent and emoji 🙂 and ½",
		"",
		"...",
	}

	for _, in := range inputs {
		once := NormalizeText(in)
		twice := NormalizeText(once)
		assert.Equal(t, once, twice, "input %q", in)
		assert.Equal(t, Normalize(in), Normalize(strings.Join(Normalize(in), " ")), "input %q", in)
	}
}

func TestCalculateErrorRates_KnownValues(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		hypothesis string
		wantWER    float64
		wantS      int
		wantD      int
		wantI      int
	}{
		{name: "identical", reference: "the quick brown fox", hypothesis: "the quick brown fox", wantWER: 0.0},
		{name: "one deletion", reference: "the quick brown fox", hypothesis: "the quick fox", wantWER: 0.25, wantD: 1},
		{name: "one insertion", reference: "hello world", hypothesis: "hello there world", wantWER: 0.5, wantI: 1},
		{name: "one substitution", reference: "the cat sat", hypothesis: "the bat sat", wantWER: 1.0 / 3.0, wantS: 1},
		{name: "normalization hides punctuation and case", reference: "Hello, World!", hypothesis: "hello world", wantWER: 0.0},
		{name: "empty hypothesis is all deletions", reference: "one two three", hypothesis: "", wantWER: 1.0, wantD: 3},
		{name: "wer can exceed one", reference: "yes", hypothesis: "no no no", wantWER: 3.0, wantS: 1, wantI: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := CalculateErrorRates(tt.reference, tt.hypothesis)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantWER, res.WER, 1e-9)
			assert.Equal(t, tt.wantS, res.Substitutions, "substitutions")
			assert.Equal(t, tt.wantD, res.Deletions, "deletions")
			assert.Equal(t, tt.wantI, res.Insertions, "insertions")
			assert.Equal(t, res.ReferenceLength, res.Hits+res.Substitutions+res.Deletions)
			assert.Equal(t, res.HypothesisLength, res.Hits+res.Substitutions+res.Insertions)
		})
	}
}

func TestCalculateErrorRates_IdentityIsZero(t *testing.T) {
	for _, ref := range []string{"a", "the quick brown fox", "Once upon a time, there was a Go program."} {
		res, err := CalculateErrorRates(ref, ref)
		require.NoError(t, err)
		assert.Zero(t, res.WER, ref)
		assert.Zero(t, res.CER, ref)
		assert.Equal(t, 1.0, res.Accuracy())
	}
}

func TestCalculateErrorRates_EmptyReferenceIsUndefined(t *testing.T) {
	for _, ref := range []string{"", "   ", "?!."} {
		_, err := CalculateErrorRates(ref, "some words")
		assert.ErrorIs(t, err, ErrEmptyReference, "reference %q", ref)

		_, err = CalculateErrorRates(ref, "")
		assert.ErrorIs(t, err, ErrEmptyReference, "reference %q with empty hypothesis", ref)
	}

	_, err := CalculateWER("", "hello")
	assert.ErrorIs(t, err, ErrEmptyReference)
	_, err = CalculateCER("", "hello")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestCalculateErrorRates_NotSymmetric(t *testing.T) {
	forward, err := CalculateErrorRates("a b", "a")
	require.NoError(t, err)
	backward, err := CalculateErrorRates("a", "a b")
	require.NoError(t, err)

	assert.InDelta(t, 0.5, forward.WER, 1e-9)
	assert.InDelta(t, 1.0, backward.WER, 1e-9)
	assert.Equal(t, 1, forward.Deletions)
	assert.Equal(t, 1, backward.Insertions)
}

func TestCalculateErrorRates_CER(t *testing.T) {
	res, err := CalculateErrorRates("kitten", "sitting")
	require.NoError(t, err)
	assert.Equal(t, 3, res.CharErrors)
	assert.Equal(t, 6, res.CharReferenceLength)
	assert.InDelta(t, 0.5, res.CER, 1e-9)

	// spaces between normalized tokens count as characters
	res, err = CalculateErrorRates("ab cd", "abcd")
	require.NoError(t, err)
	assert.Equal(t, 1, res.CharErrors)
	assert.InDelta(t, 0.2, res.CER, 1e-9)

	cer, err := CalculateCER("abc", "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cer, 1e-9)
}

func TestAlign_TieBreakPrefersSubstitution(t *testing.T) {
	a := Align([]string{"a", "b"}, []string{"b", "c"})
	assert.Equal(t, Alignment{Substitutions: 2}, a)

	// a cheaper path still beats substitutions
	a = Align([]string{"x", "y", "z"}, []string{"y", "z", "w"})
	assert.Equal(t, 2, a.Errors())
	assert.Equal(t, Alignment{Hits: 2, Deletions: 1, Insertions: 1}, a)

	a = Align(nil, []string{"a", "b"})
	assert.Equal(t, Alignment{Insertions: 2}, a)
}

func TestAnalyzeErrors(t *testing.T) {
	tests := []struct {
		name       string
		reference  string
		hypothesis string
		want       ErrorAnalysis
	}{
		{
			name:       "substitution",
			reference:  "the quick brown fox",
			hypothesis: "the quack brown fox",
			want:       ErrorAnalysis{Substitutions: []WordPair{{Reference: "quick", Hypothesis: "quack"}}},
		},
		{
			name:       "deletion",
			reference:  "a b c",
			hypothesis: "b c",
			want:       ErrorAnalysis{Deletions: []string{"a"}},
		},
		{
			name:       "insertion",
			reference:  "b c",
			hypothesis: "b c d",
			want:       ErrorAnalysis{Insertions: []string{"d"}},
		},
		{
			// two equal-cost alignments exist; the diagonal-first backtrace
			// pairs brown with quack and deletes quick
			name:       "tie-break",
			reference:  "the quick brown fox jumps",
			hypothesis: "the quack fox jumps high",
			want: ErrorAnalysis{
				Substitutions: []WordPair{{Reference: "brown", Hypothesis: "quack"}},
				Deletions:     []string{"quick"},
				Insertions:    []string{"high"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis := AnalyzeErrors(tt.reference, tt.hypothesis)
			assert.Equal(t, tt.want, analysis)

			res, err := CalculateErrorRates(tt.reference, tt.hypothesis)
			require.NoError(t, err)
			assert.Len(t, analysis.Substitutions, res.Substitutions)
			assert.Len(t, analysis.Deletions, res.Deletions)
			assert.Len(t, analysis.Insertions, res.Insertions)
		})
	}
}

func TestCalculateBatch(t *testing.T) {
	refs := []string{"the quick brown fox", "hello world", ""}
	hyps := []string{"the quick fox", "hello there world", "ignored"}

	res, err := CalculateBatch(refs, hyps)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Scored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 6, res.TotalWords)
	assert.InDelta(t, 2.0/6.0, res.OverallWER, 1e-9)
	assert.InDelta(t, (0.25+0.5)/2, res.AvgWER, 1e-9)
	assert.Len(t, res.Individual, 2)

	_, err = CalculateBatch([]string{"a"}, nil)
	assert.ErrorIs(t, err, ErrBatchLengthMismatch)

	_, err = CalculateBatch([]string{""}, []string{"x"})
	assert.ErrorIs(t, err, ErrEmptyReference)
}
