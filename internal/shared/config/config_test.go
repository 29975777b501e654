package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"OCR_LANGUAGE", "MIN_TEXT_LENGTH", "OPENAI_MODEL", "OBJECT_STORE", "ENV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.OCRLanguage != "spa" {
		t.Fatalf("expected spa OCR language, got %q", cfg.OCRLanguage)
	}
	if cfg.MinTextLength != 100 {
		t.Fatalf("expected min text length 100, got %d", cfg.MinTextLength)
	}
	if cfg.OpenAIModel != "" {
		t.Fatalf("model must not default, got %q", cfg.OpenAIModel)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected dev env, got %q", cfg.Env)
	}
}

func TestLoadOverridesAndInvalidNumbers(t *testing.T) {
	t.Setenv("OPENAI_MAX_TOKENS", "800")
	t.Setenv("MIN_TEXT_LENGTH", "not-a-number")
	t.Setenv("OBJECT_STORE", "S3")
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "postgres://localhost/cv")

	cfg := Load()
	if cfg.OpenAIMaxTokens != 800 {
		t.Fatalf("expected 800 max tokens, got %d", cfg.OpenAIMaxTokens)
	}
	if cfg.MinTextLength != 100 {
		t.Fatalf("invalid value should fall back to default, got %d", cfg.MinTextLength)
	}
	if cfg.ObjectStoreType != "s3" {
		t.Fatalf("expected s3 store, got %q", cfg.ObjectStoreType)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
}

func TestParseEnvLine(t *testing.T) {
	tests := []struct {
		line   string
		key    string
		val    string
		wantOK bool
	}{
		{line: "OPENAI_MODEL=gpt-4o-mini", key: "OPENAI_MODEL", val: "gpt-4o-mini", wantOK: true},
		{line: `export OCR_LANGUAGE="spa"`, key: "OCR_LANGUAGE", val: "spa", wantOK: true},
		{line: "# comment", wantOK: false},
		{line: "NO_EQUALS", wantOK: false},
		{line: "", wantOK: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.line, func(t *testing.T) {
			key, val, ok := parseEnvLine(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (key != tt.key || val != tt.val) {
				t.Fatalf("got %q=%q, want %q=%q", key, val, tt.key, tt.val)
			}
		})
	}
}
