package models

import "testing"

func TestRole_SpecIsExhaustive(t *testing.T) {
	for _, r := range AllRoles {
		spec, ok := r.Spec()
		if !ok {
			t.Errorf("role %q has no spec", r)
			continue
		}
		if !spec.Tier.Valid() {
			t.Errorf("role %q has invalid tier %d", r, spec.Tier)
		}
		if !spec.Mode.Valid() {
			t.Errorf("role %q has invalid mode %q", r, spec.Mode)
		}
		if spec.Office == "" {
			t.Errorf("role %q has no office", r)
		}
		if spec.Gate == GateSentinel && spec.Sentinel == "" {
			t.Errorf("role %q uses sentinel gate without a sentinel", r)
		}
	}
}

func TestRole_UnknownHasNoSpec(t *testing.T) {
	if _, ok := Role("janitor").Spec(); ok {
		t.Error("unknown role should not have a spec")
	}
	if Role("").Valid() {
		t.Error("empty role should be invalid")
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"coder", RoleCoder, false},
		{"  Tester ", RoleTester, false},
		{"REVIEWER", RoleReviewer, false},
		{"", "", true},
		{"qa", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRole(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRole_TierAssignments(t *testing.T) {
	if RoleArchitect.MustSpec().Tier != TierComplex {
		t.Error("architect should be tier 2")
	}
	if RoleTester.MustSpec().Tier != TierRoutine {
		t.Error("tester should be tier 0")
	}
	if !RoleCoder.MustSpec().HeavyUse || !RoleFixer.MustSpec().HeavyUse {
		t.Error("coder and fixer should be heavy-use roles")
	}
}

func TestCanonicalRole(t *testing.T) {
	for _, tier := range []Tier{TierRoutine, TierStandard, TierComplex} {
		if got := CanonicalRole(tier).MustSpec().Tier; got != tier {
			t.Errorf("CanonicalRole(%v) has tier %v", tier, got)
		}
	}
}

func TestMustSpec_PanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustSpec should panic for unknown role")
		}
	}()
	Role("nope").MustSpec()
}
