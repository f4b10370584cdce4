package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table"), false},
		{errors.New("SQLITE_BUSY: cannot commit"), true},
		{fmt.Errorf("set settings: %w", errors.New("database is locked")), true},
	}
	for _, tc := range cases {
		if got := IsSQLiteConflictError(tc.err); got != tc.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRedact(t *testing.T) {
	if got := Redact(""); got != "MISSING" {
		t.Errorf("Redact(\"\") = %q", got)
	}
	if got := Redact("   "); got != "MISSING" {
		t.Errorf("Redact(blank) = %q", got)
	}
	if got := Redact("sk-test"); got == "sk-test" {
		t.Error("Redact leaked the secret")
	}
}
