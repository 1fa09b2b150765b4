package app

import (
	"testing"

	"github.com/plutaslab-hq/darkmode-ai-server/app/config"
)

func TestParsePositiveInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parsePositiveInt("42")
		if err != nil || got != 42 {
			t.Fatalf("parsePositiveInt valid = (%d,%v), want (42,nil)", got, err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parsePositiveInt("not-an-int"); err == nil {
			t.Fatalf("parsePositiveInt should error for invalid input")
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"resume.pdf":          "resume.pdf",
		"../../etc/passwd":    "passwd",
		"my résumé (v2).docx": "my_r_sum___v2_.docx",
		"":                    "file",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func storageConfigWith(provider string) config.StorageConfig {
	return config.StorageConfig{Provider: provider, LocalDir: "./uploads"}
}
