package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func paths(files []FileInfo) map[string]bool {
	found := make(map[string]bool)
	for _, f := range files {
		found[f.Path] = true
	}
	return found
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.py":                     "print('hi')",
		"pkg/__init__.py":             "",
		"pkg/util.py":                 "x = 1",
		"pkg/util.pyi":                "x: int",
		"README.md":                   "# Test",
		"setup.cfg":                   "[metadata]",
		".hidden/secret.py":           "",
		".venv/lib/site.py":           "",
		"pkg/__pycache__/util.py":     "",
		"mylib.egg-info/top_level.py": "",
		"node_modules/pkg/main.py":    "",
		"tools/gen.pyw":               "",
		".config.py":                  "",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	found := paths(results)
	for _, expected := range []string{"main.py", "pkg/__init__.py", "pkg/util.py", "tools/gen.pyw"} {
		if !found[expected] {
			t.Errorf("Expected to find %s, but it wasn't found", expected)
		}
	}
	excluded := []string{
		"pkg/util.pyi", "README.md", "setup.cfg", ".hidden/secret.py", ".venv/lib/site.py",
		"pkg/__pycache__/util.py", "mylib.egg-info/top_level.py", "node_modules/pkg/main.py", ".config.py",
	}
	for _, path := range excluded {
		if found[path] {
			t.Errorf("Expected %s to be excluded, but it was found", path)
		}
	}
	if len(results) != 4 {
		t.Errorf("Scan found %d files, want 4", len(results))
	}

	for i := 1; i < len(results); i++ {
		if results[i-1].Path > results[i].Path {
			t.Errorf("results not sorted: %s before %s", results[i-1].Path, results[i].Path)
		}
	}
	for _, f := range results {
		if !filepath.IsAbs(f.FullPath) {
			t.Errorf("FullPath %s is not absolute", f.FullPath)
		}
	}
}

func TestScannerIncludeStubs(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"a.py": "", "a.pyi": ""})

	opts := DefaultOptions()
	opts.IncludeStubs = true
	results, err := New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Scan found %d files, want 2", len(results))
	}
	if results[0].Stub || !results[1].Stub {
		t.Errorf("Stub flags = %v, %v, want false, true", results[0].Stub, results[1].Stub)
	}
}

func TestScannerWithFtqignore(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		".ftqignore": `# Generated code
*_pb2.py
# Fixtures
tests/fixtures/
migrations/
!migrations/keep.py
`,
		"app.py":                     "",
		"api_pb2.py":                 "",
		"tests/test_app.py":          "",
		"tests/fixtures/broken.py":   "",
		"migrations/0001_initial.py": "",
		"sub/.ftqignore":             "local.py\n",
		"sub/local.py":               "",
		"sub/other.py":               "",
		"local.py":                   "",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	found := paths(results)

	for _, expected := range []string{"app.py", "tests/test_app.py", "sub/other.py", "local.py"} {
		if !found[expected] {
			t.Errorf("Expected to find %s", expected)
		}
	}
	for _, ignored := range []string{"api_pb2.py", "tests/fixtures/broken.py", "migrations/0001_initial.py", "sub/local.py"} {
		if found[ignored] {
			t.Errorf("Expected %s to be ignored", ignored)
		}
	}
}

func TestScannerSkipHidden(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"visible.py":      "",
		".hidden/file.py": "",
	})

	results, _ := New(DefaultOptions()).Scan(tmpDir)
	if paths(results)[".hidden/file.py"] {
		t.Error("Should skip hidden directories when SkipHidden=true")
	}

	opts := DefaultOptions()
	opts.SkipHidden = false
	results, _ = New(opts).Scan(tmpDir)
	if !paths(results)[".hidden/file.py"] {
		t.Error("Should find .hidden/file.py when SkipHidden=false")
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Scan of a missing root should fail")
	}
}

func TestExpand(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"pkg/a.py":  "",
		"pkg/b.py":  "",
		"script":    "#!/usr/bin/env python3",
		"pkg/c.txt": "",
	})
	s := New(DefaultOptions())

	got, err := s.Expand([]string{filepath.Join(tmpDir, "script"), filepath.Join(tmpDir, "pkg"), filepath.Join(tmpDir, "pkg", "a.py")})
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	want := []string{
		filepath.Join(tmpDir, "script"),
		filepath.Join(tmpDir, "pkg", "a.py"),
		filepath.Join(tmpDir, "pkg", "b.py"),
	}
	if len(got) != len(want) {
		t.Fatalf("Expand() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expand()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := s.Expand([]string{filepath.Join(tmpDir, "nope.py")}); err == nil {
		t.Error("Expand of a missing path should fail")
	}
}

func TestIsPython(t *testing.T) {
	tests := []struct {
		path string
		ok   bool
		stub bool
	}{
		{"a.py", true, false},
		{"A.PY", true, false},
		{"gui.pyw", true, false},
		{"types.pyi", true, true},
		{"mod.pyc", false, false},
		{"main.go", false, false},
		{"Makefile", false, false},
	}

	for _, tt := range tests {
		ok, stub := IsPython(tt.path)
		if ok != tt.ok || stub != tt.stub {
			t.Errorf("IsPython(%q) = %v, %v, want %v, %v", tt.path, ok, stub, tt.ok, tt.stub)
		}
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		isDir   bool
		match   bool
	}{
		// Simple patterns
		{"*.py", "file.py", false, true},
		{"*.py", "dir/file.py", false, true},
		{"*.py", "file.txt", false, false},
		{"build/", "build/file.py", false, true},
		{"build/", "other/build/file.py", false, true},
		{"build/", "builder.py", false, false},
		{"build/", "build", false, false},
		{"build/", "build", true, true},

		// Anchored patterns
		{"/build/", "build/file.py", false, true},
		{"/build/", "src/build/file.py", false, false},
		{"src/*.py", "src/app.py", false, true},
		{"src/*.py", "src/deep/app.py", false, false},
		{"src/*.py", "lib/src/app.py", false, false},

		// Double asterisk
		{"**/test/**", "test/file.py", false, true},
		{"**/test/**", "src/test/file.py", false, true},
		{"**/test/**", "src/deep/test/file.py", false, true},
		{"**/test/**", "testing/file.py", false, false},

		// Question mark and classes
		{"file?.py", "file1.py", false, true},
		{"file?.py", "file12.py", false, false},
		{"v[0-9].py", "v3.py", false, true},

		// Negation still matches; the caller decides
		{"!*.py", "file.py", false, true},
	}

	for _, tt := range tests {
		result := ParseIgnorePattern(tt.pattern).Match(tt.path, tt.isDir)
		if result != tt.match {
			t.Errorf("Pattern %q matching %q (dir=%v): got %v, want %v", tt.pattern, tt.path, tt.isDir, result, tt.match)
		}
	}
}

func TestIgnoredLastMatchWins(t *testing.T) {
	rules := []ignoreRules{{base: ".", patterns: []IgnorePattern{
		ParseIgnorePattern("*.py"),
		ParseIgnorePattern("!keep.py"),
	}}}
	if !ignored(rules, "drop.py", false) {
		t.Error("drop.py should be ignored")
	}
	if ignored(rules, "keep.py", false) {
		t.Error("keep.py should be re-included")
	}
}
