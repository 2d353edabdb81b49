package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"metalcore/internal/infra/blob/fs", true},
		{"metalcore/internal/infra/persistence/memory", true},
		{"metalcore/internal/core", false},
		{"metalcore/pkg/domain", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"metalcore/internal/core", true},
		{"metalcore/pkg/massbalance", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

// TestAssertNoDirectImports exercises the success path on a tiny temp package.
func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

func TestDirectImportViolationsDetected(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport _ \"metalcore/internal/infra/blob/fs\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	viols, err := directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations: %v", viols)
	}

	logger := &capturingLogger{}
	failIfDirectViolations(logger, "layering", viols)
	if logger.message == "" {
		t.Fatal("expected failure message")
	}
}

func TestTransitiveDependencyViolationsUsesGoList(t *testing.T) {
	orig := goListDeps
	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nmetalcore/internal/infra/blob/fs\n"), nil
	}
	defer func() { goListDeps = orig }()

	viols, _, err := transitiveDependencyViolations("./...", InfraImportForbidden)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(viols) != 1 || viols[0] != "metalcore/internal/infra/blob/fs" {
		t.Fatalf("violations: %v", viols)
	}
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	AssertNoTransitiveDependency(t, ".", func(string) bool { return false }, "none")
}

type capturingLogger struct{ message string }

func (c *capturingLogger) Fatalf(format string, args ...any) {
	c.message = fmt.Sprintf(format, args...)
}
