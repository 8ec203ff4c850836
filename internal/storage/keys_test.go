package storage

import (
	"testing"
	"time"
)

func TestTemplateKeys(t *testing.T) {
	if got := TemplatePreviewKey("42"); got != "templates/42/preview.jpg" {
		t.Fatalf("unexpected preview key %q", got)
	}
	if got := RenderKey("42", "r1"); got != "templates/42/renders/r1.pdf" {
		t.Fatalf("unexpected render key %q", got)
	}
}

func TestAssetKey(t *testing.T) {
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	key := AssetKey(now, "abc", ".PNG")
	if key != "assets/2026/03/abc.png" {
		t.Fatalf("unexpected asset key %q", key)
	}
	if !IsAssetKey(key) {
		t.Fatalf("expected %q to be an asset key", key)
	}
}

func TestIsAssetKeyRejectsTraversal(t *testing.T) {
	cases := []string{
		"",
		"/assets/a.png",
		"assets/../templates/1/preview.jpg",
		"templates/1/preview.jpg",
		"assets//a.png",
	}
	for _, key := range cases {
		if IsAssetKey(key) {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
}
