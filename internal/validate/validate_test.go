package validate

import "testing"

func TestAliasRejections(t *testing.T) {
	bad := []string{"", "   ", "--", "-x", ".", "..", "a/b", "a\\b", "a\x00b"}
	for _, name := range bad {
		if err := Alias(name); err == nil {
			t.Errorf("Alias(%q) = nil, want error", name)
		}
	}
}

func TestAliasAccepts(t *testing.T) {
	good := []string{"kpods", "my-tool", "g", "tool.sh"}
	for _, name := range good {
		if err := Alias(name); err != nil {
			t.Errorf("Alias(%q) = %v, want nil", name, err)
		}
	}
}

func TestEnvKey(t *testing.T) {
	if _, err := EnvKey("  X  "); err != nil {
		t.Fatalf("EnvKey trimmed valid key: %v", err)
	}
	if got, _ := EnvKey("  X  "); got != "X" {
		t.Fatalf("EnvKey did not trim: %q", got)
	}
	if _, err := EnvKey("X=Y"); err == nil {
		t.Fatalf("EnvKey accepted key containing '='")
	}
	if _, err := EnvKey("   "); err == nil {
		t.Fatalf("EnvKey accepted blank key")
	}
}

func TestNotBlankTrims(t *testing.T) {
	got, err := NotBlank("field", "  value  ")
	if err != nil || got != "value" {
		t.Fatalf("NotBlank() = %q, %v", got, err)
	}
	if _, err := NotBlank("field", "   "); err == nil {
		t.Fatalf("NotBlank accepted blank value")
	}
}

func TestTimeout(t *testing.T) {
	if err := Timeout(-1); err == nil {
		t.Fatalf("Timeout accepted negative value")
	}
	if err := Timeout(0); err != nil {
		t.Fatalf("Timeout(0) = %v, want nil (unbounded)", err)
	}
}
