package ids

import "testing"

func TestNewIsSortable(t *testing.T) {
	a := New()
	b := New()
	if len(a) != 26 || a >= b {
		t.Fatalf("expected increasing ulids, got %q then %q", a, b)
	}
}

func TestSecretIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := Secret()
		if err != nil {
			t.Fatalf("Secret: %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret %q", s)
		}
		seen[s] = true
	}
}
