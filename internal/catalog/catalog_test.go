package catalog

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestModelVersion(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  string
	}{
		{"Base model", ModelStableDiffusion, "1.5"},
		{"SD 2.1", ModelSD21, "2.1"},
		{"Trigger model", "Ghibli Diffusion", "1"},
		{"Unknown model", "does-not-exist", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ModelVersion(tt.model); got != tt.want {
				t.Errorf("ModelVersion(%q) = %q, want %q", tt.model, got, tt.want)
			}
		})
	}
}

func TestTriggerWords(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  []string
	}{
		{"Single trigger", "Arcane Diffusion", []string{"arcane style"}},
		{"Multiple triggers", "Synthwave Punk", []string{"snthwve style", "nvinkpunk"}},
		{"No triggers", ModelStableDiffusion, nil},
		{"Unknown model", "does-not-exist", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TriggerWords(tt.model); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TriggerWords(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestSamplersForBatch(t *testing.T) {
	if got := SamplersForBatch(ModelSD2Base); !reflect.DeepEqual(got, []string{SamplerDpmSolver}) {
		t.Errorf("SamplersForBatch(%q) = %v, want single-entry dpmsolver set", ModelSD2Base, got)
	}
	if got := SamplersForBatch(ModelStableDiffusion); !reflect.DeepEqual(got, DefaultSamplers()) {
		t.Errorf("SamplersForBatch(%q) = %v, want the default set", ModelStableDiffusion, got)
	}
	if got := SamplersForBatch(""); !reflect.DeepEqual(got, DefaultSamplers()) {
		t.Errorf("SamplersForBatch(\"\") = %v, want the default set", got)
	}
}

func TestEligibleSamplers(t *testing.T) {
	tests := []struct {
		name             string
		steps            int
		sourceProcessing string
		want             []string
	}{
		{"Txt2img low steps keeps full set", 20, "txt2img", []string{"k_dpm_2_a", "k_dpm_2", "k_euler_a", "k_euler", "k_heun", "k_lms"}},
		{"Empty mode treated as txt2img", 20, "", []string{"k_dpm_2_a", "k_dpm_2", "k_euler_a", "k_euler", "k_heun", "k_lms"}},
		{"High steps drops slow samplers", 30, "txt2img", []string{"k_euler_a", "k_euler", "k_lms"}},
		{"Img2img narrows the pool", 20, "img2img", []string{"k_dpm_2", "k_euler_a", "k_euler", "k_lms"}},
		{"Img2img high steps drops k_dpm_2 too", 40, "img2img", []string{"k_euler_a", "k_euler", "k_lms"}},
		{"Inpainting uses the img2img pool", 20, "inpainting", []string{"k_dpm_2", "k_euler_a", "k_euler", "k_lms"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EligibleSamplers(tt.steps, tt.sourceProcessing); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("EligibleSamplers(%d, %q) = %v, want %v", tt.steps, tt.sourceProcessing, got, tt.want)
			}
		})
	}
}

func TestRandomSamplerStaysEligible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	eligible := map[string]bool{}
	for _, sampler := range EligibleSamplers(30, "txt2img") {
		eligible[sampler] = true
	}
	for i := 0; i < 200; i++ {
		if sampler := RandomSampler(rng, 30, "txt2img"); !eligible[sampler] {
			t.Fatalf("RandomSampler returned ineligible sampler %q", sampler)
		}
	}
}

func TestForcedSampler(t *testing.T) {
	tests := []struct {
		model  string
		want   string
		forced bool
	}{
		{ModelSD20, SamplerDpmSolver, true},
		{ModelSD21, SamplerDpmSolver, true},
		{ModelSD2Base, "", false},
		{ModelStableDiffusion, "", false},
	}

	for _, tt := range tests {
		got, forced := ForcedSampler(tt.model)
		if got != tt.want || forced != tt.forced {
			t.Errorf("ForcedSampler(%q) = (%q, %v), want (%q, %v)", tt.model, got, forced, tt.want, tt.forced)
		}
	}
}

func TestLookupOrientation(t *testing.T) {
	o, ok := LookupOrientation("landscape-16x9")
	if !ok {
		t.Fatal("landscape-16x9 missing from the catalog")
	}
	if o.Width != 768 || o.Height != 448 {
		t.Errorf("landscape-16x9 = %dx%d, want 768x448", o.Width, o.Height)
	}
	if _, ok := LookupOrientation("does-not-exist"); ok {
		t.Error("unknown orientation should not resolve")
	}
}

func TestOrientationDimensionsAreWorkerAligned(t *testing.T) {
	for _, o := range Orientations() {
		if o.Width%64 != 0 || o.Height%64 != 0 {
			t.Errorf("orientation %q is %dx%d, want multiples of 64", o.Name, o.Width, o.Height)
		}
	}
}

func TestRandomModelExcludesBlanketSkips(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		model := RandomModel(rng)
		info, ok := LookupModel(model)
		if !ok {
			t.Fatalf("RandomModel returned unknown model %q", model)
		}
		if info.SkipBlanket {
			t.Fatalf("RandomModel returned blanket-excluded model %q", model)
		}
	}
}

func TestRandomStyleIsInCatalog(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		preset := RandomStyle(rng)
		if _, ok := LookupStyle(preset.Name); !ok {
			t.Fatalf("RandomStyle returned unknown preset %q", preset.Name)
		}
		if preset.Model == "" {
			t.Errorf("preset %q has no pinned model", preset.Name)
		}
	}
}
