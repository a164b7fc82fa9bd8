package ui

import (
	"strings"
	"testing"
)

func TestRenderKeepsText(t *testing.T) {
	renderers := map[string]func(string) string{
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"accent": RenderAccent,
		"muted":  RenderMuted,
		"header": RenderHeader,
	}
	for name, render := range renderers {
		if got := render("tiles"); !strings.Contains(got, "tiles") {
			t.Errorf("%s: Render(%q) = %q", name, "tiles", got)
		}
	}
}

func TestShouldUseColor_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CLICOLOR_FORCE", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR must win over CLICOLOR_FORCE")
	}
}

func TestShouldUseColor_Force(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	if !ShouldUseColor() {
		t.Error("CLICOLOR_FORCE should enable color")
	}
}
