package hive_test

import (
	"bytes"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestModuleDependencies_GraphQLPresent(t *testing.T) {
	testModulePresence(t, "github.com/graphql-go/graphql")
}

func TestModuleDependencies_RelayPresent(t *testing.T) {
	testModulePresence(t, "github.com/graphql-go/relay")
}

func TestModuleDependencies_JWTPresent(t *testing.T) {
	testModulePresence(t, "github.com/simp-lee/jwt")
}

func TestModuleDependencies_RedisPresent(t *testing.T) {
	testModulePresence(t, "github.com/redis/go-redis/v9")
}

func TestModuleDependencies_XCryptoPresent(t *testing.T) {
	testModulePresence(t, "golang.org/x/crypto")
}

func TestModuleDependencies_TracingPresent(t *testing.T) {
	testModulePresence(t, "go.opentelemetry.io/otel/sdk")
}

func TestPagination_NoOffsetQueries(t *testing.T) {
	t.Run("happy_repo_has_no_offset_queries", func(t *testing.T) {
		matches, err := findOffsetUsages(".")
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(matches) != 0 {
			t.Fatalf("expected cursor pagination only, found Offset in: %v", matches)
		}
	})

	t.Run("error_fixture_with_offset_is_detected", func(t *testing.T) {
		fixture := `package pkg
func list(db *gorm.DB) { db.Offset(20).Limit(10) }`
		if !hasOffsetQuery(fixture) {
			t.Fatal("expected offset query to be detected in fixture")
		}
	})
}

func TestSources_Formatted(t *testing.T) {
	t.Run("happy_repo_sources_are_gofmt_clean", func(t *testing.T) {
		bad, err := findUnformatted(".")
		if err != nil {
			t.Fatalf("scan repository: %v", err)
		}
		if len(bad) != 0 {
			t.Fatalf("files need gofmt or LF line endings: %v", bad)
		}
	})

	t.Run("error_fixtures_are_detected", func(t *testing.T) {
		for name, src := range map[string]string{
			"alignment": "package p\n\nfunc (x) A() int { return 0 }\nfunc (x) LongerName() int { return 0 }\n",
			"crlf":      "package p\r\n\r\nfunc f() {}\r\n",
		} {
			if !needsFormat([]byte(src)) {
				t.Errorf("%s fixture not detected", name)
			}
		}
		if needsFormat([]byte("package p\n\nfunc f() {}\n")) {
			t.Error("clean fixture reported")
		}
	})
}

func findUnformatted(root string) ([]string, error) {
	var bad []string
	err := walkSources(root, true, func(path string, b []byte) {
		if needsFormat(b) {
			bad = append(bad, path)
		}
	})
	return bad, err
}

func needsFormat(src []byte) bool {
	if bytes.Contains(src, []byte("\r\n")) {
		return true
	}
	formatted, err := format.Source(src)
	return err != nil || !bytes.Equal(formatted, src)
}

func testModulePresence(t *testing.T, module string) {
	t.Helper()

	t.Run("happy_present_in_real_go_mod", func(t *testing.T) {
		goMod, err := os.ReadFile("go.mod")
		if err != nil {
			t.Fatalf("read go.mod: %v", err)
		}
		if !moduleRequired(string(goMod), module) {
			t.Fatalf("expected module %q to be present in go.mod", module)
		}
	})

	t.Run("error_missing_module_in_fixture", func(t *testing.T) {
		fixture := `module example.com/demo

go 1.25.0

require (
	github.com/gin-gonic/gin v1.11.0
)`
		if moduleRequired(fixture, module) {
			t.Fatalf("expected fixture to not contain module %q", module)
		}
	})
}

func moduleRequired(goModContent, module string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(module) + `\s+v\S+`)
	return re.MatchString(goModContent)
}

func findOffsetUsages(root string) ([]string, error) {
	matches := make([]string, 0)
	err := walkSources(root, false, func(path string, b []byte) {
		if hasOffsetQuery(string(b)) {
			matches = append(matches, path)
		}
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// walkSources calls fn for every Go file outside vendor and dot or
// underscore directories. Test files are included when withTests is set.
func walkSources(root string, withTests bool, fn func(path string, b []byte)) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || (!withTests && strings.HasSuffix(path, "_test.go")) {
			return nil
		}
		b, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		fn(path, b)
		return nil
	})
}

func hasOffsetQuery(content string) bool {
	re := regexp.MustCompile(`\.Offset\s*\(`)
	return re.MatchString(content)
}
