package usecase

import (
	"math"
	"testing"

	"github.com/adbroll/matcher/internal/domain"
)

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNewScorer(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		s := NewScorer(ScoringConfig{})
		if s.Threshold() != 0.55 {
			t.Errorf("Threshold() = %v, want 0.55 (default)", s.Threshold())
		}
		if !s.cfg.StopWords["pro"] {
			t.Errorf("default stop words missing %q", "pro")
		}
	})

	t.Run("keeps provided threshold", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.AcceptanceThreshold = 0.7
		if got := NewScorer(cfg).Threshold(); got != 0.7 {
			t.Errorf("Threshold() = %v, want 0.7", got)
		}
	})

	t.Run("rejects out of range threshold", func(t *testing.T) {
		cfg := DefaultScoringConfig()
		cfg.AcceptanceThreshold = 1.5
		if got := NewScorer(cfg).Threshold(); got != 0.55 {
			t.Errorf("Threshold() = %v, want 0.55 (default)", got)
		}
	})

	t.Run("extra stop words are normalized", func(t *testing.T) {
		cfg := DefaultScoringConfig().WithExtraStopWords("Tendencia", "VIRAL")
		if !cfg.StopWords["tendencia"] || !cfg.StopWords["viral"] {
			t.Errorf("extra stop words not merged: %v", cfg.StopWords)
		}
		if DefaultScoringConfig().StopWords["viral"] {
			t.Errorf("WithExtraStopWords mutated the default set")
		}
	})
}

func TestScore_Scenarios(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	t.Run("explicit product name equal to product name", func(t *testing.T) {
		got := s.Score(
			VideoFields{ProductName: "plancha de cabello profesional x200"},
			ProductFields{Name: "Plancha de Cabello Profesional X200"},
		)
		if got != 1.0 {
			t.Errorf("Score() = %v, want 1.0", got)
		}
	})

	t.Run("title mentions product with emoji", func(t *testing.T) {
		got := s.Score(
			VideoFields{Title: "Estos audífonos bluetooth cambiaron mi vida 🎧✨"},
			ProductFields{Name: "Audífonos Bluetooth Pro"},
		)
		if got < 0.55 {
			t.Errorf("Score() = %v, want >= 0.55", got)
		}
		if !floatEqual(got, 0.75) {
			t.Errorf("Score() = %v, want 0.75 (full token overlap)", got)
		}
	})

	t.Run("unrelated title stays below threshold", func(t *testing.T) {
		got := s.Score(
			VideoFields{Title: "Rutina de skincare nocturna"},
			ProductFields{Name: "Crema Facial Hidratante"},
		)
		if got >= 0.55 {
			t.Errorf("Score() = %v, want < 0.55", got)
		}
	})
}

func TestScore_Components(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	tests := []struct {
		name    string
		video   VideoFields
		product ProductFields
		want    float64
	}{
		{
			name:    "title contains product name",
			video:   VideoFields{Title: "Mi nuevo termo acero inoxidable favorito"},
			product: ProductFields{Name: "Termo Acero Inoxidable"},
			want:    0.85,
		},
		{
			name:    "explicit name contains product name",
			video:   VideoFields{ProductName: "Termo Acero Inoxidable 1L negro"},
			product: ProductFields{Name: "Termo Acero Inoxidable"},
			want:    0.9,
		},
		{
			name:    "category bonus is added and clamped",
			video:   VideoFields{ProductName: "Termo Acero Inoxidable", Category: "Hogar"},
			product: ProductFields{Name: "Termo Acero Inoxidable", Category: "hogar"},
			want:    1.0,
		},
		{
			name:    "category bonus on containment",
			video:   VideoFields{Title: "Mi termo acero inoxidable", Category: "Hogar"},
			product: ProductFields{Name: "Termo Acero Inoxidable", Category: "Hogar"},
			want:    0.95,
		},
		{
			name:    "empty product name",
			video:   VideoFields{Title: "algo"},
			product: ProductFields{Name: "  "},
			want:    0,
		},
		{
			name:    "empty video",
			video:   VideoFields{},
			product: ProductFields{Name: "Termo"},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Score(tt.video, tt.product)
			if !floatEqual(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScore_TypoTolerantTokens(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	got := s.Score(
		VideoFields{Title: "los audifonos bluetoth que uso"},
		ProductFields{Name: "Audífonos Bluetooth"},
	)
	if !floatEqual(got, 0.75) {
		t.Errorf("Score() = %v, want 0.75 (bluetoth ~ bluetooth)", got)
	}
}

func TestScore_BoundsAndDeterminism(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	videos := []VideoFields{
		{Title: "Estos audífonos bluetooth cambiaron mi vida 🎧✨"},
		{Title: "Rutina de skincare nocturna", ProductName: "Crema"},
		{ProductName: "plancha de cabello profesional x200", Category: "Belleza"},
		{Title: "🔥🔥🔥"},
		{},
	}
	products := []ProductFields{
		{Name: "Audífonos Bluetooth Pro"},
		{Name: "Crema Facial Hidratante", Category: "Belleza"},
		{Name: "Plancha de Cabello Profesional X200", Category: "belleza"},
		{Name: "x"},
	}

	for _, v := range videos {
		for _, p := range products {
			first := s.Score(v, p)
			if first < 0 || first > 1 {
				t.Errorf("Score(%+v, %+v) = %v, out of [0,1]", v, p, first)
			}
			if again := s.Score(v, p); again != first {
				t.Errorf("Score(%+v, %+v) not deterministic: %v then %v", v, p, first, again)
			}
		}
	}
}

func TestEditSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"audifonos", "audífonos", 1 - 1.0/9.0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			got := EditSimilarity(tt.a, tt.b)
			if !floatEqual(got, tt.want) {
				t.Errorf("EditSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCatalog_Best(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	t.Run("empty catalog", func(t *testing.T) {
		idx, score := s.NewCatalog(nil).Best(&domain.Video{Title: "algo"})
		if idx != -1 || score != 0 {
			t.Errorf("Best() = (%d, %v), want (-1, 0)", idx, score)
		}
	})

	t.Run("first product wins ties", func(t *testing.T) {
		catalog := s.NewCatalog([]domain.Product{
			{ID: "b", Name: "Termo Acero", Revenue: 500},
			{ID: "a", Name: "Termo Acero", Revenue: 10},
		})
		idx, score := catalog.Best(&domain.Video{ProductName: "termo acero"})
		if idx != 0 || score != 1.0 {
			t.Errorf("Best() = (%d, %v), want (0, 1.0)", idx, score)
		}
	})

	t.Run("all zero scores still returns first", func(t *testing.T) {
		catalog := s.NewCatalog([]domain.Product{{ID: "a", Name: "Zzzz"}, {ID: "b", Name: "Qqqq"}})
		idx, _ := catalog.Best(&domain.Video{Title: "🔥"})
		if idx != 0 {
			t.Errorf("Best() index = %d, want 0", idx)
		}
	})
}

func TestCatalog_Direct(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())
	catalog := s.NewCatalog([]domain.Product{
		{ID: "p1", Name: "Termo", URL: "https://shop.tiktok.com/view/product/111?ref=a"},
		{ID: "p2", Name: "Plancha", URL: "https://shop.tiktok.com/view/product/222"},
		{ID: "p3", Name: "Sin enlace"},
	})

	tests := []struct {
		name    string
		video   domain.Video
		wantIdx int
		wantOK  bool
	}{
		{"link in video url", domain.Video{URL: "https://www.shop.tiktok.com/view/product/222/"}, 1, true},
		{"link in title", domain.Video{Title: "lo compré aquí shop.tiktok.com https://shop.tiktok.com/view/product/111 🔥"}, 0, true},
		{"unknown link", domain.Video{Title: "https://shop.tiktok.com/view/product/999"}, -1, false},
		{"no link", domain.Video{Title: "termo"}, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := catalog.Direct(&tt.video)
			if idx != tt.wantIdx || ok != tt.wantOK {
				t.Errorf("Direct() = (%d, %v), want (%d, %v)", idx, ok, tt.wantIdx, tt.wantOK)
			}
		})
	}
}
