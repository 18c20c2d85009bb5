package classify

import (
	"math"
	"testing"

	"github.com/cryodata/density.report/internal/smp"
)

func TestBuildFeatures(t *testing.T) {
	p := &smp.Profile{
		SiteID:    "s1",
		Depth:     []float64{0, 50, 100},
		Force:     []float64{math.E, 1, math.E * math.E},
		StructLen: []float64{0.8, 1.2, 2.5},
	}

	features, err := BuildFeatures(p)
	if err != nil {
		t.Fatalf("BuildFeatures: %v", err)
	}
	if len(features) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(features))
	}

	// Surface sample: full relative height, ln(e)=1.
	if got := features[0][FeatRelativeHeight]; math.Abs(got-1) > 1e-12 {
		t.Errorf("surface relative height = %f, want 1", got)
	}
	if got := features[0][FeatLogForce]; math.Abs(got-1) > 1e-12 {
		t.Errorf("surface log force = %f, want 1", got)
	}
	// Mid sample.
	if got := features[1][FeatRelativeHeight]; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("mid relative height = %f, want 0.5", got)
	}
	if got := features[1][FeatLogForce]; math.Abs(got) > 1e-12 {
		t.Errorf("mid log force = %f, want 0", got)
	}
	// Bottom sample: zero height, struct_len passes through untouched.
	if got := features[2][FeatRelativeHeight]; math.Abs(got) > 1e-12 {
		t.Errorf("bottom relative height = %f, want 0", got)
	}
	if got := features[2][FeatStructLen]; got != 2.5 {
		t.Errorf("struct_len = %f, want 2.5", got)
	}
}

func TestBuildFeaturesFloorsForce(t *testing.T) {
	p := &smp.Profile{
		SiteID:    "s1",
		Depth:     []float64{0, 10},
		Force:     []float64{0, -0.5}, // sensor artefacts
		StructLen: []float64{1, 1},
	}

	features, err := BuildFeatures(p)
	if err != nil {
		t.Fatalf("BuildFeatures: %v", err)
	}
	for i, f := range features {
		if math.IsInf(f[FeatLogForce], -1) || math.IsNaN(f[FeatLogForce]) {
			t.Errorf("sample %d: log force not floored: %f", i, f[FeatLogForce])
		}
	}
}

func TestBuildFeaturesRequiresColumns(t *testing.T) {
	p := &smp.Profile{SiteID: "s1", Depth: []float64{0, 10}, Force: []float64{1, 1}}
	if _, err := BuildFeatures(p); err == nil {
		t.Fatal("expected error for missing structural-length column")
	}
}

func TestFeatureNamesMatchLayout(t *testing.T) {
	names := FeatureNames()
	if len(names) != NumFeatures {
		t.Fatalf("expected %d names, got %d", NumFeatures, len(names))
	}
}
