package catalog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mzizi/muundo/model"
)

const placesSpec = `
openapi: 3.0.3
info:
  title: Places
  version: "1.0"
servers:
  - url: https://places.example.com
paths:
  /places/nearby:
    get:
      operationId: nearbyPlaces
      parameters:
        - name: lat
          in: query
          schema: {type: number}
        - name: lng
          in: query
          schema: {type: number}
      responses:
        "200":
          description: ok
  /places/{placeId}:
    get:
      operationId: placeDetail
      parameters:
        - name: placeId
          in: path
          required: true
          schema: {type: string}
      responses:
        "200":
          description: ok
`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCatalog_load(t *testing.T) {
	c := NewCatalog()
	err := c.Load([]SpecSource{{ServiceID: "places-svc", SpecPath: writeSpec(t, placesSpec)}})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	spec, ok := c.Lookup("nearbyPlaces")
	if !ok {
		t.Fatal("nearbyPlaces not indexed")
	}
	if spec.Method != "GET" || spec.PathTemplate != "/places/nearby" {
		t.Errorf("spec = %+v", spec)
	}
	if spec.BaseURL != "https://places.example.com" {
		t.Errorf("base url = %q", spec.BaseURL)
	}

	detail, ok := c.Lookup("placeDetail")
	if !ok {
		t.Fatal("placeDetail not indexed")
	}
	if !reflect.DeepEqual(detail.PathParams, []string{"placeId"}) {
		t.Errorf("path params = %v", detail.PathParams)
	}

	if got := c.Names(); !reflect.DeepEqual(got, []string{"nearbyPlaces", "placeDetail"}) {
		t.Errorf("names = %v", got)
	}
}

func TestCatalog_duplicateOperationID(t *testing.T) {
	c := NewCatalog()
	path := writeSpec(t, placesSpec)
	err := c.Load([]SpecSource{
		{ServiceID: "a-svc", SpecPath: path},
		{ServiceID: "b-svc", SpecPath: path},
	})
	if err == nil {
		t.Fatal("expected duplicate operationId error")
	}
}

func TestCatalog_unknownLookup(t *testing.T) {
	if _, ok := NewCatalog().Lookup("nope"); ok {
		t.Error("empty catalog should not resolve")
	}
}

func TestPathParamNames(t *testing.T) {
	got := pathParamNames("/a/{x}/b/{y}")
	if !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Errorf("pathParamNames = %v", got)
	}
	if pathParamNames("/plain/path") != nil {
		t.Error("no params expected")
	}
}

func TestCatalog_missingQueries(t *testing.T) {
	c := NewCatalog()
	if err := c.Load([]SpecSource{{ServiceID: "places-svc", SpecPath: writeSpec(t, placesSpec)}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	doc := &model.StructureDocument{
		Pages: []model.PageDefinition{
			{
				Sections: []model.PageSection{
					{DataSource: &model.DataSource{QueryName: "nearbyPlaces"}},
					{DataSource: &model.DataSource{QueryName: "ghostQuery"}},
					{DataSource: &model.DataSource{QueryName: "ghostQuery"}},
					{},
				},
			},
		},
		Navigation: []model.NavigationItem{
			{BadgeSource: "api://unreadCount"},
			{BadgeSource: "navigate://home"},
		},
	}

	got := c.MissingQueries(doc)
	want := []string{"ghostQuery", "unreadCount"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MissingQueries = %v, want %v", got, want)
	}
}

func TestCatalog_missingQueries_cleanDocument(t *testing.T) {
	c := NewCatalog()
	if err := c.Load([]SpecSource{{ServiceID: "places-svc", SpecPath: writeSpec(t, placesSpec)}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	doc := &model.StructureDocument{
		Pages: []model.PageDefinition{
			{Sections: []model.PageSection{{DataSource: &model.DataSource{QueryName: "placeDetail"}}}},
		},
	}
	if got := c.MissingQueries(doc); len(got) != 0 {
		t.Errorf("MissingQueries = %v, want none", got)
	}
}
