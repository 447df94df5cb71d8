package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountTokensFallback(t *testing.T) {
	require.Equal(t, 0, CountTokensFallback(""))
	require.Equal(t, len("a simple sentence")/4, CountTokensFallback("a simple sentence"))
}

func TestClassifySimple(t *testing.T) {
	c := Classify("what is total revenue")
	require.NotEmpty(t, c.Level)
	require.GreaterOrEqual(t, c.Confidence, 0.0)
	require.LessOrEqual(t, c.Confidence, 1.0)
}

func TestClassifyAdvancedBeatsSimpleOnMLVocabulary(t *testing.T) {
	simple := Classify("what is revenue")
	advanced := Classify("run a clustering and embedding based anomaly detection with statistical significance across a multivariate cohort segmentation, correlating churn attribution with regression forecast predictions over qoq and yoy windows using sql")
	require.Equal(t, LevelSimple, simple.Level)
	require.Equal(t, LevelAdvanced, advanced.Level)
}

func TestAnalyzeExtractsSignals(t *testing.T) {
	a := Analyze("compare revenue this quarter vs last quarter, calculate the percentage change")
	require.Contains(t, a.Metrics, "revenue")
	require.True(t, a.RequiresCalculation)
	require.NotEmpty(t, a.TimeReferences)
}

func TestRankOrdering(t *testing.T) {
	require.Less(t, Rank(LevelSimple), Rank(LevelMedium))
	require.Less(t, Rank(LevelMedium), Rank(LevelComplex))
	require.Less(t, Rank(LevelComplex), Rank(LevelAdvanced))
}
