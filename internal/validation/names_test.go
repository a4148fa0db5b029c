package validation

import (
	"strings"
	"testing"
)

func TestValidPolicyName_Valid(t *testing.T) {
	valids := []string{
		"a",
		"me",
		"admin",
		"records.read",
		"records:write",
		"a_b-c.d:scope2",
		// 64 chars
		"a" + strings.Repeat("a", 62) + "b",
	}
	for _, v := range valids {
		if !ValidPolicyName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidPolicyName_Invalid(t *testing.T) {
	invalids := []string{
		"",
		".lead",
		"trail:",
		"bad space",
		"Records",
		"a/b",
		"semicolon;hack",
		"a" + strings.Repeat("b", 63) + "c",
	}
	for _, v := range invalids {
		if ValidPolicyName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestValidRoleName(t *testing.T) {
	for _, v := range []string{"DOCTOR", "nurse", "admin", "role:read", "Ops-Team"} {
		if !ValidRoleName(v) {
			t.Fatalf("expected valid role: %q", v)
		}
	}
	for _, v := range []string{"", "two words", "a,b", "tab\there", strings.Repeat("x", 65)} {
		if ValidRoleName(v) {
			t.Fatalf("expected invalid role: %q", v)
		}
	}
}
