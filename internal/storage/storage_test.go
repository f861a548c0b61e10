package storage

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestObjectKeyFormat(t *testing.T) {
	key := ObjectKey("user-123", "My Clip.mp4")

	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || parts[0] != "user-123" {
		t.Fatalf("expected user prefix, got %q", key)
	}

	name := parts[1]
	sep := strings.Index(name, "_")
	if sep < 0 {
		t.Fatalf("expected timestamp separator in %q", name)
	}
	ts, err := strconv.ParseInt(name[:sep], 10, 64)
	if err != nil {
		t.Fatalf("expected millisecond timestamp, got %q", name[:sep])
	}
	if d := time.Since(time.UnixMilli(ts)); d < 0 || d > time.Minute {
		t.Errorf("timestamp not current: %v", d)
	}
	if name[sep+1:] != "My Clip.mp4" {
		t.Errorf("expected original filename, got %q", name[sep+1:])
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, expected string }{
		{"clip.mp4", "clip.mp4"},
		{"a/b\\c.mp4", "a_b_c.mp4"},
		{"quo\"te.mp4", "quo_te.mp4"},
		{"ctrl\x01char.mp4", "ctrl_char.mp4"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, expected %q", tt.in, got, tt.expected)
		}
	}
}

func TestPublicURL(t *testing.T) {
	s := &Storage{bucket: "mukkaz", publicBase: "https://files.example.com"}
	got := s.PublicURL("user-1/1700_clip.mp4")
	expected := "https://files.example.com/mukkaz/user-1/1700_clip.mp4"
	if got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
