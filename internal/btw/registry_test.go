package btw

import "testing"

func TestDefaultRegistry_Codes(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		code     string
		pct      string
		box      Box
		category Category
		side     Side
	}{
		{"1a", "21", Box1a, CategoryOwed, SideCredit},
		{"1b", "9", Box1b, CategoryOwed, SideCredit},
		{"1c", "0", Box1c, CategoryOwed, SideCredit},
		{"1d", "21", Box1d, CategoryOwed, SideCredit},
		{"1e", "0", Box1e, CategoryExempt, SideAny},
		{"2a", "0", Box2a, CategoryReverse, SideAny},
		{"3a", "0", Box3a, CategoryExempt, SideAny},
		{"3b", "0", Box3b, CategoryExempt, SideAny},
		{"4a", "21", Box4a, CategoryReverse, SideDebit},
		{"4b", "21", Box4b, CategoryReverse, SideDebit},
		{"5b", "21", Box5b, CategoryReclaimable, SideDebit},
		{"5b-laag", "9", Box5b, CategoryReclaimable, SideDebit},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			info, ok := r.Lookup(tt.code)
			if !ok {
				t.Fatalf("expected code %q to be registered", tt.code)
			}
			if !info.Percentage.Equal(dec(tt.pct)) {
				t.Errorf("expected percentage %s, got %s", tt.pct, info.Percentage)
			}
			if info.Box() != tt.box {
				t.Errorf("expected box %q, got %q", tt.box, info.Box())
			}
			if info.Category != tt.category {
				t.Errorf("expected category %q, got %q", tt.category, info.Category)
			}
			if info.Policy.ExpectedSide != tt.side {
				t.Errorf("expected side %q, got %q", tt.side, info.Policy.ExpectedSide)
			}
			if !info.IsReal() {
				t.Error("expected a real code")
			}
		})
	}

	if r.Len() != len(tests)+1 {
		t.Errorf("expected %d codes, got %d", len(tests)+1, r.Len())
	}
}

func TestDefaultRegistry_BaseOnlyBoxesProduceNoVAT(t *testing.T) {
	r := DefaultRegistry()
	for _, code := range []string{"1e", "2a", "3a", "3b"} {
		info, _ := r.Lookup(code)
		if info.Policy.ContributesVAT {
			t.Errorf("code %s: expected base-only policy", code)
		}
	}
}

func TestRegistry_NoneSentinel(t *testing.T) {
	info, ok := DefaultRegistry().Lookup(CodeNone)
	if !ok {
		t.Fatal("expected the none sentinel to be a valid code")
	}
	if info.IsReal() {
		t.Error("expected the none sentinel not to be a real code")
	}
}

func TestRegistry_LookupNormalizes(t *testing.T) {
	r := DefaultRegistry()
	for _, code := range []string{"1A", " 1a ", "5B-LAAG"} {
		if _, ok := r.Lookup(code); !ok {
			t.Errorf("expected %q to resolve", code)
		}
	}
	if _, ok := r.Lookup("7z"); ok {
		t.Error("expected unknown code to be absent")
	}
}

func TestRegistry_Injected(t *testing.T) {
	r := NewRegistry(CodeInfo{
		Code:       "1A",
		Percentage: dec("19"),
		Category:   CategoryOwed,
		Policy:     Policy{Box: Box1a, ExpectedSide: SideCredit, ContributesVAT: true},
	})

	if r.Len() != 1 {
		t.Fatalf("expected 1 code, got %d", r.Len())
	}
	got := NewCalculator(r).VATFromBase(dec("100"), "1a")
	assertDecimal(t, "vat", got, "19")
}

func TestRegistry_CodesSorted(t *testing.T) {
	codes := DefaultRegistry().Codes()
	for i := 1; i < len(codes); i++ {
		if codes[i-1].Code > codes[i].Code {
			t.Fatalf("codes not sorted: %s before %s", codes[i-1].Code, codes[i].Code)
		}
	}
}
