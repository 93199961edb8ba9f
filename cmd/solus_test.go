package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// TestMain_Invoke runs in a subprocess to execute main().
func TestMain_Invoke(t *testing.T) {
	if os.Getenv("SOLUS_TEST_MAIN") != "1" {
		return
	}
	main()
}

func runMain(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestMain_Invoke", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "SOLUS_TEST_MAIN=1")

	output, err := cmd.CombinedOutput()
	return string(output), err
}

func TestMain_MissingConfig(t *testing.T) {
	output, err := runMain(t, "-config", "does-not-exist.yml")

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got err=%v output=%s", err, output)
	}

	if !strings.Contains(output, "failed to load configuration") {
		t.Fatalf("expected config load failure, got: %s", output)
	}
}

func TestMain_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("media:\n  path: relative/uploads\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	output, err := runMain(t, "-config", path)

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got err=%v output=%s", err, output)
	}

	if !strings.Contains(output, "failed to load configuration") {
		t.Fatalf("expected validation failure, got: %s", output)
	}
}

func TestMain_EmptyConfigFlag(t *testing.T) {
	output, err := runMain(t, "-config", " ")

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got err=%v output=%s", err, output)
	}
}
