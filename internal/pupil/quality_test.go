package pupil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/pupiltrack/internal/ellipse"
)

func TestScoreQuality(t *testing.T) {
	t.Parallel()

	circle := ellipse.Circle(0, 0, 10)
	tests := []struct {
		name string
		in   QualityInput
		want Quality
	}{
		{
			name: "typical frame",
			in:   QualityInput{PointCount: 100, MeanPointCount: 100, Residual: 2, MeanResidual: 2, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 1, ResidualMult: 1, Oblongity: 1, ComboMult: 1},
		},
		{
			name: "sparse frame",
			in:   QualityInput{PointCount: 50, MeanPointCount: 100, Residual: 2, MeanResidual: 2, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 0.5, ResidualMult: 1, Oblongity: 1, ComboMult: 0.5},
		},
		{
			name: "dense frame clipped",
			in:   QualityInput{PointCount: 300, MeanPointCount: 100, Residual: 1, MeanResidual: 2, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 1, ResidualMult: 1, Oblongity: 1, ComboMult: 1},
		},
		{
			name: "noisy frame",
			in:   QualityInput{PointCount: 100, MeanPointCount: 100, Residual: 4, MeanResidual: 2, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 1, ResidualMult: 0.5, Oblongity: 1, ComboMult: 0.5},
		},
		{
			name: "zero residual",
			in:   QualityInput{PointCount: 100, MeanPointCount: 100, Residual: 0, MeanResidual: 2, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 1, ResidualMult: 0, Oblongity: 1, ComboMult: 0},
		},
		{
			name: "no history",
			in:   QualityInput{PointCount: 10, MeanPointCount: 0, Residual: 1, MeanResidual: 1, Candidate: circle, FitOK: true},
			want: Quality{PointMult: 0, ResidualMult: 1, Oblongity: 1, ComboMult: 0},
		},
		{
			name: "fit failed",
			in:   QualityInput{PointCount: 100, MeanPointCount: 100, Residual: 1, MeanResidual: 1, Candidate: circle},
			want: Quality{PointMult: 1, ResidualMult: 1, Oblongity: 0, ComboMult: 0},
		},
		{
			name: "oblong candidate",
			in:   QualityInput{PointCount: 100, MeanPointCount: 100, Residual: 1, MeanResidual: 1, Candidate: ellipse.Params{A: 4, B: 8}, FitOK: true},
			want: Quality{PointMult: 1, ResidualMult: 1, Oblongity: 0.5, ComboMult: 0.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreQuality(tt.in)
			assert.InDelta(t, tt.want.PointMult, got.PointMult, 1e-12)
			assert.InDelta(t, tt.want.ResidualMult, got.ResidualMult, 1e-12)
			assert.InDelta(t, tt.want.Oblongity, got.Oblongity, 1e-12)
			assert.InDelta(t, tt.want.ComboMult, got.ComboMult, 1e-12)
		})
	}
}

func TestScoreQuality_DegenerateOblongity(t *testing.T) {
	t.Parallel()

	q := ScoreQuality(QualityInput{
		PointCount: 1, MeanPointCount: 1, Residual: 1, MeanResidual: 1,
		Candidate: ellipse.Params{A: 10, B: 1e-9}, FitOK: true,
	})
	assert.Less(t, q.Oblongity, 1e-6)
	assert.GreaterOrEqual(t, q.ComboMult, 0.0)
}

func TestQuality_String(t *testing.T) {
	t.Parallel()

	q := Quality{PointMult: 1, ResidualMult: 0.5, Oblongity: 0.25, ComboMult: 0.125}
	assert.Equal(t, "points=1.000 residual=0.500 oblongity=0.250 combo=0.125", q.String())
}
