package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	e := New(10 * time.Second)

	result, err := e.Run(context.Background(), "sh", []string{"-c", "echo out; echo err >&2; exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if result.Stdout != "out\n" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if result.Stderr != "err\n" {
		t.Errorf("stderr = %q", result.Stderr)
	}
}

func TestRun_EnvOverlayWins(t *testing.T) {
	t.Setenv("PROXY_TEST_VAR", "parent")

	e := New(10 * time.Second)
	result, err := e.Run(context.Background(), "sh", []string{"-c", "printf %s \"$PROXY_TEST_VAR\""},
		map[string]string{"PROXY_TEST_VAR": "overlay"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The merge is right-biased: the overlay value shadows the parent's.
	if result.Stdout != "overlay" {
		t.Errorf("stdout = %q, want overlay value", result.Stdout)
	}
}

func TestRun_ParentEnvInherited(t *testing.T) {
	t.Setenv("PROXY_TEST_INHERIT", "inherited")

	e := New(10 * time.Second)
	result, err := e.Run(context.Background(), "sh", []string{"-c", "printf %s \"$PROXY_TEST_INHERIT\""}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Stdout != "inherited" {
		t.Errorf("stdout = %q, want inherited parent value", result.Stdout)
	}
}

func TestRun_Timeout(t *testing.T) {
	e := New(1 * time.Second)

	start := time.Now()
	result, err := e.Run(context.Background(), "sleep", []string{"30"}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
	if result.Stderr != "Command timed out after 1s" {
		t.Errorf("stderr = %q", result.Stderr)
	}
	if result.Stdout != "" {
		t.Errorf("stdout = %q, want empty", result.Stdout)
	}
	// SIGTERM should land promptly; well under the kill grace.
	if elapsed > 4*time.Second {
		t.Errorf("timeout took %s, child not terminated promptly", elapsed)
	}
}

func TestRun_CallerCancel(t *testing.T) {
	e := New(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := e.Run(ctx, "sleep", []string{"30"}, nil)
	if err == nil {
		t.Fatal("expected error after caller cancellation")
	}
	if time.Since(start) > 4*time.Second {
		t.Error("child not reaped promptly after cancellation")
	}
}

func TestRun_InvalidUTF8Replaced(t *testing.T) {
	e := New(10 * time.Second)

	result, err := e.Run(context.Background(), "sh", []string{"-c", `printf '\377ok'`}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(result.Stdout, "ok") {
		t.Errorf("stdout lost valid bytes: %q", result.Stdout)
	}
	if !strings.Contains(result.Stdout, "�") {
		t.Errorf("invalid byte not replaced: %q", result.Stdout)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	e := New(10 * time.Second)

	result, err := e.Run(context.Background(), "definitely-not-a-binary-anywhere", nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ExitCode != 127 {
		t.Errorf("exit code = %d, want 127", result.ExitCode)
	}
	if result.Stderr == "" {
		t.Error("stderr should describe the start failure")
	}
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"A=1", "B=2"}, map[string]string{"B": "3", "C": "4"})

	// Overlay entries are appended last so process creation keeps them on
	// duplicate keys.
	if env[0] != "A=1" || env[1] != "B=2" {
		t.Errorf("parent entries mutated: %v", env[:2])
	}
	rest := strings.Join(env[2:], ",")
	if !strings.Contains(rest, "B=3") || !strings.Contains(rest, "C=4") {
		t.Errorf("overlay entries missing: %v", env[2:])
	}
}
