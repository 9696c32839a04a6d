package model

import "testing"

func TestRuntimeContext_lookupUser(t *testing.T) {
	rc := &RuntimeContext{
		User: &UserContext{
			ID:       "u-1",
			Email:    "a@b.example",
			Verified: true,
			Claims:   map[string]any{"PLAN": "pro"},
		},
	}

	v, ok := rc.Lookup(NamespaceUser, "ID")
	if !ok || v != "u-1" {
		t.Errorf("Lookup(USER, ID) = %v, %v", v, ok)
	}
	v, ok = rc.Lookup(NamespaceUser, "VERIFIED")
	if !ok || v != true {
		t.Errorf("Lookup(USER, VERIFIED) = %v, %v", v, ok)
	}
	// Claims act as an extension of the USER namespace.
	v, ok = rc.Lookup(NamespaceUser, "PLAN")
	if !ok || v != "pro" {
		t.Errorf("Lookup(USER, PLAN) = %v, %v", v, ok)
	}
	if _, ok = rc.Lookup(NamespaceUser, "NOPE"); ok {
		t.Error("unknown field should not resolve")
	}
}

func TestRuntimeContext_nilNamespaces(t *testing.T) {
	rc := &RuntimeContext{}

	if _, ok := rc.Lookup(NamespaceUser, "ID"); ok {
		t.Error("nil USER namespace should not resolve")
	}
	if _, ok := rc.Lookup(NamespaceGeo, "LATITUDE"); ok {
		t.Error("nil GEOLOCATION namespace should not resolve")
	}
	if rc.NamespaceAvailable(NamespaceUser) {
		t.Error("USER should be unavailable")
	}
}

func TestRuntimeContext_filter(t *testing.T) {
	rc := &RuntimeContext{Filter: map[string]any{"category": "parks", "radius": 5}}

	v, ok := rc.Lookup(NamespaceFilter, "category")
	if !ok || v != "parks" {
		t.Errorf("Lookup(FILTER, category) = %v, %v", v, ok)
	}
	if _, ok := rc.Lookup(NamespaceFilter, "missing"); ok {
		t.Error("missing filter key should not resolve")
	}
}

func TestKnownNamespace(t *testing.T) {
	for _, ns := range []string{NamespaceUser, NamespaceGeo, NamespaceFilter} {
		if !KnownNamespace(ns) {
			t.Errorf("KnownNamespace(%q) = false", ns)
		}
	}
	if KnownNamespace("SESSION") {
		t.Error("KnownNamespace(SESSION) = true")
	}
}
