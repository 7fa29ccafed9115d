package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := Load(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Load missing file error: %v", err)
	}
}

func TestLoad_SetsValuesAndPreservesExisting(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# vendor keys\n" +
		"OPENAI_API_KEY=sk-test\n" +
		"QUOTED=\"with spaces\"\n" +
		"SINGLE='single'\n" +
		"export EXPORTED=yes\n" +
		"KEPT=from_file\n" +
		"=bad\n" +
		"no_equals_here\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	t.Setenv("KEPT", "already_set")

	if err := Load(envPath); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	for key, want := range map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"QUOTED":         "with spaces",
		"SINGLE":         "single",
		"EXPORTED":       "yes",
		"KEPT":           "already_set",
	} {
		if got := os.Getenv(key); got != want {
			t.Fatalf("%s=%q, want %q", key, got, want)
		}
	}
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw string
		key string
		val string
		ok  bool
	}{
		{"A=1", "A", "1", true},
		{"  B = two  ", "B", "two", true},
		{"export C=3", "C", "3", true},
		{`D="quoted"`, "D", "quoted", true},
		{"# comment", "", "", false},
		{"", "", "", false},
		{"=nokey", "", "", false},
		{"noequals", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseLine(tc.raw)
		if key != tc.key || val != tc.val || ok != tc.ok {
			t.Errorf("parseLine(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.raw, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}
