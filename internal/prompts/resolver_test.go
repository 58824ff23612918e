package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestResolver() *Resolver {
	r := NewResolver(nil)
	r.Register(EmbeddedPrompt{Key: "extraction.system", Text: "system text"})
	r.Register(EmbeddedPrompt{Key: "extraction.user", Text: "page {{.PageNumber}}"})
	return r
}

func TestResolver_Embedded(t *testing.T) {
	r := newTestResolver()

	p, err := r.Resolve("extraction.user")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if p.IsOverride {
		t.Error("IsOverride = true, want false")
	}
	if p.Source != "embedded" {
		t.Errorf("Source = %s, want embedded", p.Source)
	}
	if p.Hash != HashText("page {{.PageNumber}}") {
		t.Error("Hash does not match text")
	}
	if len(p.Variables) != 1 || p.Variables[0] != "PageNumber" {
		t.Errorf("Variables = %v, want [PageNumber]", p.Variables)
	}

	if _, err := r.Resolve("missing"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestResolver_Render(t *testing.T) {
	r := newTestResolver()

	got, err := r.Render("extraction.user", struct{ PageNumber int }{7})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "page 7" {
		t.Errorf("Render() = %q, want %q", got, "page 7")
	}

	if _, err := r.Render("extraction.user", struct{ Other int }{1}); err == nil {
		t.Error("expected error for missing template field")
	}
}

func TestResolver_LoadOverrides(t *testing.T) {
	t.Run("hierarchical keys", func(t *testing.T) {
		r := newTestResolver()
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		os.WriteFile(path, []byte("extraction.system: custom system\nunknown.key: ignored\n"), 0o644)

		if err := r.LoadOverrides(path); err != nil {
			t.Fatalf("LoadOverrides() error = %v", err)
		}
		p, _ := r.Resolve("extraction.system")
		if !p.IsOverride || p.Text != "custom system" {
			t.Errorf("Resolve() = %+v, want override", p)
		}
		if p.Source != path {
			t.Errorf("Source = %s, want %s", p.Source, path)
		}
		p, _ = r.Resolve("extraction.user")
		if p.IsOverride {
			t.Error("non-overridden key reported as override")
		}
	})

	t.Run("legacy keys and placeholders", func(t *testing.T) {
		r := newTestResolver()
		path := filepath.Join(t.TempDir(), "system_prompts.yaml")
		content := "SP_markdown_sections_and_parts: legacy system\nUSER_markdown_sections_and_parts: 'Describe page $PAGE_N$'\n"
		os.WriteFile(path, []byte(content), 0o644)

		if err := r.LoadOverrides(path); err != nil {
			t.Fatalf("LoadOverrides() error = %v", err)
		}
		got, err := r.Render("extraction.user", struct{ PageNumber int }{3})
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if got != "Describe page 3" {
			t.Errorf("Render() = %q", got)
		}
		p, _ := r.Resolve("extraction.system")
		if p.Text != "legacy system" {
			t.Errorf("system Text = %q", p.Text)
		}
	})

	t.Run("empty path clears", func(t *testing.T) {
		r := newTestResolver()
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		os.WriteFile(path, []byte("extraction.system: custom\n"), 0o644)
		r.LoadOverrides(path)

		if err := r.LoadOverrides(""); err != nil {
			t.Fatalf("LoadOverrides(\"\") error = %v", err)
		}
		p, _ := r.Resolve("extraction.system")
		if p.IsOverride {
			t.Error("override survived clearing")
		}
	})

	t.Run("bad file", func(t *testing.T) {
		r := newTestResolver()
		if err := r.LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
		path := filepath.Join(t.TempDir(), "bad.yaml")
		os.WriteFile(path, []byte("- not\n- a map\n"), 0o644)
		if err := r.LoadOverrides(path); err == nil {
			t.Error("expected error for non-map YAML")
		}
	})
}

func TestResolver_All(t *testing.T) {
	r := newTestResolver()
	all := r.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].Key != "extraction.system" || all[1].Key != "extraction.user" {
		t.Errorf("All() not sorted: %s, %s", all[0].Key, all[1].Key)
	}
}

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello {{.Name}}, you have {{ .Count }} items", "Count,Name"},
		{"{{.Page.Number}} and {{.Page.Number}}", "Page.Number"},
		{"no variables", ""},
	}
	for _, tt := range tests {
		got := strings.Join(ExtractVariables(tt.text), ",")
		if got != tt.want {
			t.Errorf("ExtractVariables(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}
