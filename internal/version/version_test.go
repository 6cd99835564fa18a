package version

import (
	"strings"
	"testing"
)

func TestStringContainsVersion(t *testing.T) {
	s := String()
	if !strings.Contains(s, Version) {
		t.Errorf("String() = %q, expected it to contain %q", s, Version)
	}
	if !strings.HasPrefix(s, "shipwright ") {
		t.Errorf("String() = %q, expected shipwright prefix", s)
	}
}
