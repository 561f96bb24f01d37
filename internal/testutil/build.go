package testutil

import (
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

// BuildBinary compiles the agconf command into a temporary directory and
// returns the path of the executable.
func BuildBinary(t testing.TB) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to get caller information")
	}
	root, err := findModuleRoot(filepath.Dir(filename))
	if err != nil {
		t.Fatalf("find project root: %v", err)
	}

	name := "agconf"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	binary := filepath.Join(t.TempDir(), name)

	cmd := exec.Command("go", "build", "-o", binary, "./cmd/agconf")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}
	return binary
}
