package strategy

import (
	"testing"

	"backlab/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Prepare(_ []domain.Bar, _ string, _ domain.DateRange) ([]domain.AlignedRow, error) {
	return nil, nil
}
func (s *stubStrategy) GenerateSignals(_ []domain.AlignedRow) ([]domain.SignalFlags, error) {
	return nil, nil
}
func (s *stubStrategy) IndicatorColumns() []string { return nil }

func TestRegistryNewFromFactory(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(_ Params) (Strategy, error) {
		return &stubStrategy{name: "stub"}, nil
	})

	got, err := r.New("stub", nil)
	if err != nil {
		t.Fatalf("New returned error for registered strategy: %v", err)
	}
	if got.Name() != "stub" {
		t.Errorf("New returned strategy with Name() = %q, want %q", got.Name(), "stub")
	}
}

func TestRegistryNewNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("nonexistent", nil); err == nil {
		t.Error("New should fail for an unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register("beta", func(_ Params) (Strategy, error) { return &stubStrategy{name: "beta"}, nil })
	r.Register("alpha", func(_ Params) (Strategy, error) { return &stubStrategy{name: "alpha"}, nil })

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func TestParamsGet(t *testing.T) {
	p := Params{"fast": 7}
	if got := p.Get("fast", 5); got != 7 {
		t.Errorf("Get(fast) = %v, want 7", got)
	}
	if got := p.Get("slow", 20); got != 20 {
		t.Errorf("Get(slow) default = %v, want 20", got)
	}
	var nilParams Params
	if got := nilParams.Get("anything", 3); got != 3 {
		t.Errorf("nil Params Get = %v, want 3", got)
	}
}
