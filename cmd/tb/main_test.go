package main

import (
	"strings"
	"testing"

	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

func TestAssetsPath(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"/assets", "/assets"},
		{"/static/tiles", "/static/tiles"},
		{"https://cdn.example.com/tiles", "/tiles"},
		{"https://cdn.example.com", "/assets"},
		{"", "/assets"},
	}
	for _, tt := range tests {
		if got := assetsPath(tt.base); got != tt.want {
			t.Errorf("assetsPath(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestDisplayAddr(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"[::]:54321", "localhost:54321"},
		{"0.0.0.0:8080", "localhost:8080"},
		{"127.0.0.1:9000", "localhost:9000"},
		{"not-an-addr", "not-an-addr"},
	}
	for _, tt := range tests {
		if got := displayAddr(tt.addr); got != tt.want {
			t.Errorf("displayAddr(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"version"},
		{"tiles", "list"},
		{"tiles", "reset"},
		{"tiles", "import"},
		{"tiles", "export"},
		{"bench"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil {
			t.Fatalf("Find(%v) failed: %v", path, err)
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %q", path, cmd.Name())
		}
	}
}

func TestRenderTiles(t *testing.T) {
	out := renderTiles([]schema.Tile{
		{ID: "mail", Label: "Mail", URL: "https://mail.example.com", Icon: "mail"},
		{ID: "pic", Label: "Picture", Icon: "app", ImageURL: "/assets/pic.png", Description: "Has an image"},
		{ID: "plain", Label: "Plain"},
	})

	for _, want := range []string{"mail", "https://mail.example.com", "[image]", "Has an image", "(no link)"} {
		if !strings.Contains(out, want) {
			t.Errorf("renderTiles() missing %q in:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("renderTiles() wrote %d lines, want 4", n)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("a much longer label", 8); got != "a much …" {
		t.Errorf("truncate() = %q", got)
	}
}
