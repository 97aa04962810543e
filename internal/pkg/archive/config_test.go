package archive

import (
	"testing"
	"time"
)

func TestConfigGetObjectKey(t *testing.T) {
	cfg := &Config{BucketName: "renders"}
	at := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		outputURL string
		want      string
	}{
		{"mp4 output", "https://cdn.example.com/out/final.mp4", "renders/2026/03/job-uuid.mp4"},
		{"png output", "https://cdn.example.com/x.png", "renders/2026/03/job-uuid.png"},
		{"no extension", "https://cdn.example.com/stream", "renders/2026/03/job-uuid"},
		{"signed url junk", "https://cdn.example.com/f.mp4?X-Sig=abcdef0123456789", "renders/2026/03/job-uuid"},
	}

	for _, tt := range tests {
		if got := cfg.GetObjectKey("job-uuid", tt.outputURL, at); got != tt.want {
			t.Fatalf("%s: GetObjectKey = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoadConfigValidation(t *testing.T) {
	// Enabled archive without credentials must fail fast.
	t.Setenv("S3_ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	t.Setenv("S3_BUCKET_NAME", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected validation error with missing credentials")
	}

	t.Setenv("S3_ARCHIVE_ENABLED", "false")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error for disabled archive: %v", err)
	}
	if cfg.IsEnabled() {
		t.Fatalf("expected archive to be disabled")
	}
}
