package socketpath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveRejectsEmptyPath(t *testing.T) {
	if _, err := Resolve(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
	if _, err := Resolve("   "); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured for blank path, got %v", err)
	}
}

func TestResolveExpandsHome(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("No home directory: %v", err)
	}

	got, err := Resolve("~/bridge.sock")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	want := filepath.Join(homeDir, "bridge.sock")
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestResolveKeepsPipeNames(t *testing.T) {
	pipe := PipePrefix + "extbridge"
	got, err := Resolve(pipe)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != pipe {
		t.Errorf("Expected pipe name unchanged, got %s", got)
	}
}

func TestResolveMakesAbsolute(t *testing.T) {
	got, err := Resolve("bridge.sock")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("Expected absolute path, got %s", got)
	}
}

func TestValidateUnixPathLength(t *testing.T) {
	if err := Validate("/tmp/bridge.sock"); err != nil {
		t.Errorf("Expected short path to validate, got %v", err)
	}

	long := "/tmp/" + strings.Repeat("a", 104)
	if err := Validate(long); !errors.Is(err, ErrAddressTooLong) {
		t.Errorf("Expected ErrAddressTooLong, got %v", err)
	}

	// Exactly at the limit is accepted.
	exact := "/" + strings.Repeat("a", 103)
	if len(exact) != 104 {
		t.Fatalf("Test path should be 104 bytes, got %d", len(exact))
	}
	if err := Validate(exact); err != nil {
		t.Errorf("Expected 104-byte path to validate, got %v", err)
	}
}

func TestValidatePipeNameLength(t *testing.T) {
	if err := Validate(PipePrefix + "extbridge"); err != nil {
		t.Errorf("Expected short pipe name to validate, got %v", err)
	}

	long := PipePrefix + strings.Repeat("a", 256)
	if err := Validate(long); !errors.Is(err, ErrAddressTooLong) {
		t.Errorf("Expected ErrAddressTooLong, got %v", err)
	}

	// Pipe names between 104 and 256 bytes use the pipe limit.
	medium := PipePrefix + strings.Repeat("a", 150)
	if err := Validate(medium); err != nil {
		t.Errorf("Expected 150-byte pipe name to validate, got %v", err)
	}
}

func TestValidateRejectsEmpty(t *testing.T) {
	if err := Validate(""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestParseFileMode(t *testing.T) {
	if got := parseFileMode("0600"); got != 0600 {
		t.Errorf("Expected 0600, got %o", got)
	}
	if got := parseFileMode("0660"); got != 0660 {
		t.Errorf("Expected 0660, got %o", got)
	}
	if got := parseFileMode("garbage"); got != 0600 {
		t.Errorf("Expected fallback 0600, got %o", got)
	}
}
