package btw

import (
	"strings"
	"testing"
)

func TestValidator_Exclusivity(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	tests := []struct {
		name   string
		debit  string
		credit string
		valid  bool
	}{
		{"debit only", "100", "0", true},
		{"credit only", "0", "100", true},
		{"both positive", "100", "100", false},
		{"both zero", "0", "0", false},
		{"negative debit", "-5", "10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(Candidate{Debit: dec(tt.debit), Credit: dec(tt.credit)})
			if res.Valid != tt.valid {
				t.Errorf("expected valid=%v, got %v (errors %v)", tt.valid, res.Valid, res.Errors)
			}
			if !tt.valid && len(res.Errors) == 0 {
				t.Error("expected a non-empty error list")
			}
		})
	}
}

func TestValidator_UnknownCode(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	res := v.Validate(Candidate{Credit: dec("100"), Code: SomeCode("9z")})
	if res.Valid {
		t.Fatal("expected unknown code to be invalid")
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "9z") {
		t.Errorf("expected one error naming the code, got %v", res.Errors)
	}
}

func TestValidator_AllRulesEvaluated(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	res := v.Validate(Candidate{Debit: dec("100"), Credit: dec("100"), Code: SomeCode("9z")})
	if len(res.Errors) != 2 {
		t.Errorf("expected 2 errors, got %v", res.Errors)
	}
}

func TestValidator_NoneAndAbsentCodesAreValid(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	for _, code := range []OptionalCode{NoCode(), SomeCode(CodeNone), SomeCode("  ")} {
		res := v.Validate(Candidate{Debit: dec("10"), Code: code, VATAmount: SomeAmount(dec("99"))})
		if !res.Valid || len(res.Warnings) != 0 {
			t.Errorf("code %q: expected clean result, got %+v", code, res)
		}
	}
}

func TestValidator_AmountReconciliation(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	tests := []struct {
		name     string
		stored   OptionalAmount
		warnings int
	}{
		{"exact", SomeAmount(dec("210.00")), 0},
		{"within tolerance", SomeAmount(dec("210.01")), 0},
		{"negative stored", SomeAmount(dec("-210.00")), 0},
		{"mismatch", SomeAmount(dec("200.00")), 1},
		{"absent", NoAmount(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(Candidate{Credit: dec("1000"), Code: SomeCode("1a"), VATAmount: tt.stored})
			if !res.Valid {
				t.Fatalf("expected valid, got errors %v", res.Errors)
			}
			if len(res.Warnings) != tt.warnings {
				t.Fatalf("expected %d warnings, got %v", tt.warnings, res.Warnings)
			}
			if tt.warnings == 1 {
				w := res.Warnings[0]
				if !strings.Contains(w, "210.00") || !strings.Contains(w, "200.00") {
					t.Errorf("expected warning with expected and actual figures, got %q", w)
				}
			}
		})
	}
}

func TestValidator_Precision(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	tests := []struct {
		name  string
		c     Candidate
		valid bool
	}{
		{"whole cents", Candidate{Debit: dec("10.50"), Code: SomeCode("5b")}, true},
		{"trailing zeros", Candidate{Debit: dec("10.500"), Code: SomeCode("5b")}, true},
		{"rounds to zero", Candidate{Debit: dec("0.004")}, false},
		{"half cent", Candidate{Debit: dec("10.005"), Code: SomeCode("5b")}, false},
		{"sub-cent credit", Candidate{Credit: dec("1000.001"), Code: SomeCode("1a")}, false},
		{"sub-cent BTW amount", Candidate{Credit: dec("1000"), Code: SomeCode("1a"), VATAmount: SomeAmount(dec("210.001"))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.c)
			if res.Valid != tt.valid {
				t.Fatalf("expected valid=%v, got %v (errors %v)", tt.valid, res.Valid, res.Errors)
			}
			if !tt.valid && !containsSubstring(res.Errors, "more than two decimals") {
				t.Errorf("expected a precision error, got %v", res.Errors)
			}
		})
	}
}

func TestValidator_CustomTolerance(t *testing.T) {
	v := NewValidator(DefaultRegistry()).WithTolerance(dec("0.50"))

	res := v.Validate(Candidate{Credit: dec("1000"), Code: SomeCode("1a"), VATAmount: SomeAmount(dec("209.60"))})
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
}

func TestValidator_VariableRateSkipsReconciliation(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	res := v.Validate(Candidate{Credit: dec("1000"), Code: SomeCode("1c"), VATAmount: SomeAmount(dec("55.00"))})
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
}

func TestValidator_AccountCategory(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	tests := []struct {
		name     string
		cand     Candidate
		warnings int
	}{
		{"sales with reclaimable", Candidate{Debit: dec("100"), Code: SomeCode("5b"), AccountNumber: "8000", AccountCategory: AccountSales}, 1},
		{"cost with owed", Candidate{Credit: dec("100"), Code: SomeCode("1a"), AccountNumber: "4000", AccountCategory: AccountCost}, 1},
		{"cost with reclaimable", Candidate{Debit: dec("100"), Code: SomeCode("5b"), AccountNumber: "4000", AccountCategory: AccountCost}, 0},
		{"unknown category", Candidate{Debit: dec("100"), Code: SomeCode("5b"), AccountNumber: "9999"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.cand)
			if !res.Valid {
				t.Fatalf("warnings must not block: %v", res.Errors)
			}
			if len(res.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, res.Warnings)
			}
		})
	}
}

func TestValidator_Side(t *testing.T) {
	v := NewValidator(DefaultRegistry())

	tests := []struct {
		name     string
		cand     Candidate
		warnings int
	}{
		{"reclaimable on credit", Candidate{Credit: dec("100"), Code: SomeCode("5b")}, 1},
		{"reclaimable on debit", Candidate{Debit: dec("100"), Code: SomeCode("5b-laag")}, 0},
		{"owed on debit", Candidate{Debit: dec("100"), Code: SomeCode("1b")}, 1},
		{"owed on credit", Candidate{Credit: dec("100"), Code: SomeCode("1d")}, 0},
		{"reverse charge either side", Candidate{Credit: dec("100"), Code: SomeCode("4a")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.cand)
			if !res.Valid {
				t.Fatalf("warnings must not block: %v", res.Errors)
			}
			if len(res.Warnings) != tt.warnings {
				t.Errorf("expected %d warnings, got %v", tt.warnings, res.Warnings)
			}
		})
	}
}

func containsSubstring(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
