package schema

import (
	"os"
	"path/filepath"
	"testing"
)

const jsonDoc = `{
  "version": "1.0",
  "meta": {"app_name": "demo", "default_page": "home"},
  "blocks": [{"id": "hero", "component": "HeroCard"}],
  "pages": [{"id": "home", "title": "Home", "screen": "main", "sections": []}],
  "navigation": [],
  "future_field": {"ignored": true}
}`

const yamlDoc = `
version: "1.0"
meta:
  app_name: demo
  default_page: home
blocks:
  - id: hero
    component: HeroCard
pages:
  - id: home
    title: Home
    screen: main
    sections: []
navigation: []
`

func TestLoadBytes_json(t *testing.T) {
	doc, err := NewLoader().LoadBytes([]byte(jsonDoc), true)
	if err != nil {
		t.Fatalf("LoadBytes error: %v", err)
	}
	if doc.Meta.AppName != "demo" {
		t.Errorf("app_name = %q", doc.Meta.AppName)
	}
	if len(doc.Blocks) != 1 || doc.Blocks[0].Component != "HeroCard" {
		t.Errorf("blocks = %+v", doc.Blocks)
	}
	if doc.Checksum == "" {
		t.Error("checksum not computed")
	}
}

func TestLoadBytes_yaml(t *testing.T) {
	doc, err := NewLoader().LoadBytes([]byte(yamlDoc), false)
	if err != nil {
		t.Fatalf("LoadBytes error: %v", err)
	}
	if doc.Pages[0].ID != "home" {
		t.Errorf("page id = %q", doc.Pages[0].ID)
	}
}

func TestLoadBytes_checksumTracksContent(t *testing.T) {
	l := NewLoader()
	a, err := l.LoadBytes([]byte(jsonDoc), true)
	if err != nil {
		t.Fatalf("LoadBytes error: %v", err)
	}
	b, err := l.LoadBytes([]byte(yamlDoc), false)
	if err != nil {
		t.Fatalf("LoadBytes error: %v", err)
	}
	if a.Checksum == b.Checksum {
		t.Error("different bytes should yield different checksums")
	}
}

func TestLoadFile_recordsSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	if err := os.WriteFile(path, []byte(jsonDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := NewLoader().LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if doc.Source != path {
		t.Errorf("source = %q, want %q", doc.Source, path)
	}
}

func TestLoadBytes_malformed(t *testing.T) {
	if _, err := NewLoader().LoadBytes([]byte("{not json"), true); err == nil {
		t.Fatal("expected parse error")
	}
}
