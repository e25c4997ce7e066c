package keybuilder

import "testing"

func TestBuild_KeyOrderIndependent(t *testing.T) {
	a := Build("GET", "/users", map[string]interface{}{"limit": 10, "offset": 0}, nil)
	b := Build("GET", "/users", map[string]interface{}{"offset": 0, "limit": 10}, nil)
	if a != b {
		t.Fatalf("fingerprints differ by key order: %q vs %q", a, b)
	}
}

func TestBuild_MethodUppercased(t *testing.T) {
	a := Build("get", "/users", nil, nil)
	b := Build("GET", "/users", nil, nil)
	if a != b {
		t.Fatalf("expected method to be case-normalized: %q vs %q", a, b)
	}
}

func TestBuild_NoBodyForSafeMethods(t *testing.T) {
	for _, method := range []string{"GET", "HEAD", "DELETE", "OPTIONS"} {
		fp := Build(method, "/x", nil, map[string]interface{}{"a": 1})
		want := method + ":/x:null:"
		if fp != want {
			t.Fatalf("method %s: got %q, want %q", method, fp, want)
		}
	}
}

func TestBuild_BodyIncludedForWriteMethods(t *testing.T) {
	for _, method := range []string{"POST", "PUT", "PATCH"} {
		fp := Build(method, "/x", nil, map[string]interface{}{"a": 1})
		want := method + `:/x:null:{"a":1}`
		if fp != want {
			t.Fatalf("method %s: got %q, want %q", method, fp, want)
		}
	}
}

func TestBuild_NestedObjectsSortedRecursively(t *testing.T) {
	a := Build("POST", "/x", nil, map[string]interface{}{
		"outer": map[string]interface{}{"z": 1, "a": 2},
		"b":     1,
	})
	b := Build("POST", "/x", nil, map[string]interface{}{
		"b":     1,
		"outer": map[string]interface{}{"a": 2, "z": 1},
	})
	if a != b {
		t.Fatalf("fingerprints differ for nested key order: %q vs %q", a, b)
	}
}

func TestBuild_ArrayOrderPreserved(t *testing.T) {
	a := Build("POST", "/x", nil, map[string]interface{}{"tags": []interface{}{"a", "b"}})
	b := Build("POST", "/x", nil, map[string]interface{}{"tags": []interface{}{"b", "a"}})
	if a == b {
		t.Fatal("expected array order to matter")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	want := Build("GET", "/users/1", map[string]interface{}{"x": 1}, nil)
	for i := 0; i < 100; i++ {
		got := Build("GET", "/users/1", map[string]interface{}{"x": 1}, nil)
		if got != want {
			t.Fatalf("iteration %d: got %q, want %q", i, got, want)
		}
	}
}

func TestWithFingerprint_Bypasses(t *testing.T) {
	if got := WithFingerprint("custom-key"); got != "custom-key" {
		t.Fatalf("got %q", got)
	}
}
