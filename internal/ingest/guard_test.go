package ingest

import (
	"testing"
	"time"
)

func testFile(name string) MediaFile {
	return MediaFile{
		Name:         name,
		Size:         1024,
		LastModified: time.UnixMilli(1700000000000),
	}
}

func TestGuardAllowsFirstSubmission(t *testing.T) {
	g := NewGuard(time.Second)
	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
}

func TestGuardAllowsDifferentFileWhileInFlight(t *testing.T) {
	g := NewGuard(time.Second)
	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
	if !g.Begin(testFile("b.mp4")) {
		t.Error("a different file must be admitted while another is in flight")
	}
	g.Finish(testFile("a.mp4"))
	g.Finish(testFile("b.mp4"))
}

func TestGuardRejectsSameFileWhileInFlight(t *testing.T) {
	g := NewGuard(time.Second)
	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
	if g.Begin(testFile("a.mp4")) {
		t.Error("the same file should be rejected while it is in flight")
	}
}

func TestGuardRejectsSameFileWithinCooldown(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	g := NewGuard(time.Second)
	g.now = func() time.Time { return now }

	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
	g.Finish(testFile("a.mp4"))

	now = now.Add(500 * time.Millisecond)
	if g.Begin(testFile("a.mp4")) {
		t.Error("same file within cooldown should be rejected")
	}

	now = now.Add(600 * time.Millisecond)
	if !g.Begin(testFile("a.mp4")) {
		t.Error("same file after cooldown should be allowed")
	}
}

func TestGuardCooldownSurvivesInterleavedSubmissions(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	g := NewGuard(time.Second)
	g.now = func() time.Time { return now }

	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
	g.Finish(testFile("a.mp4"))
	if !g.Begin(testFile("b.mp4")) {
		t.Fatal("different file should be allowed")
	}
	g.Finish(testFile("b.mp4"))

	now = now.Add(500 * time.Millisecond)
	if g.Begin(testFile("a.mp4")) {
		t.Error("resubmitting the first file within cooldown should still be rejected")
	}
}

func TestGuardDistinguishesByMetadata(t *testing.T) {
	g := NewGuard(time.Second)
	if !g.Begin(testFile("a.mp4")) {
		t.Fatal("first submission should be allowed")
	}
	g.Finish(testFile("a.mp4"))

	changed := testFile("a.mp4")
	changed.Size = 2048
	if !g.Begin(changed) {
		t.Error("same name with different size is a different file")
	}
}
