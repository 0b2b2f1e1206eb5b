package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "fangov"

// layerRule lists what a layer of a bounded-context module may import,
// besides the standard library.
type layerRule struct {
	local    []string
	external []string
	forbid   []string
}

// Paths in local are relative to the owning module, e.g. "/domain".
var layerRules = map[string]layerRule{
	"domain": {
		local:    []string{"/domain"},
		external: []string{"github.com/shopspring/decimal"},
		forbid:   []string{"/adapters/", "/application", "/transport/"},
	},
	"ports": {
		local:    []string{"/domain", "/ports"},
		external: []string{"github.com/shopspring/decimal", modulePath + "/contracts"},
		forbid:   []string{"/adapters/", "/application"},
	},
	"application": {
		local:    []string{"/application", "/domain", "/ports"},
		external: []string{"github.com/shopspring/decimal", modulePath + "/contracts"},
		forbid:   []string{"/adapters/", "/transport/"},
	},
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func main() {
	root := "contexts"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	violations := collectViolations(root)
	if len(violations) == 0 {
		fmt.Println("boundary checks passed")
		return
	}

	fmt.Println("boundary violations found:")
	for _, v := range violations {
		fmt.Printf("- %s:%d imports %q (%s)\n", v.File, v.Line, v.Import, v.Rule)
	}
	os.Exit(1)
}

// collectViolations walks contexts/<context>/<service>/<layer>/... below root
// and reports imports that break layer or module isolation.
func collectViolations(root string) []violation {
	var violations []violation
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 3 {
			return nil
		}
		owner := fmt.Sprintf("%s/contexts/%s/%s", modulePath, parts[0], parts[1])
		layer := parts[2]
		violations = append(violations, checkFile(path, filepath.ToSlash(path), owner, layer)...)
		return nil
	})

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		if violations[i].Line != violations[j].Line {
			return violations[i].Line < violations[j].Line
		}
		return violations[i].Import < violations[j].Import
	})
	return violations
}

func checkFile(path string, display string, owner string, layer string) []violation {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
	if err != nil {
		return []violation{{File: display, Line: 1, Rule: "file must parse"}}
	}

	var violations []violation
	for _, imp := range file.Imports {
		importPath := strings.Trim(imp.Path.Value, "\"")
		line := fset.Position(imp.Pos()).Line
		report := func(rule string) {
			violations = append(violations, violation{File: display, Line: line, Import: importPath, Rule: rule})
		}

		if hasPrefix(importPath, modulePath+"/contexts") && !hasPrefix(importPath, owner) {
			report("cross-module imports are forbidden")
			continue
		}

		rule, ok := layerRules[layer]
		if !ok {
			continue
		}
		if hasPrefix(importPath, modulePath+"/internal") {
			report(layer + " must not import runtime infrastructure")
			continue
		}
		if hasPrefix(importPath, owner) {
			relative := strings.TrimPrefix(importPath, owner)
			if containsAny(relative, rule.forbid) {
				report(layer + " must not import " + strings.Trim(relative, "/"))
				continue
			}
			if !matchesAny(relative, rule.local) {
				report(layer + " import is outside the module allowlist")
			}
			continue
		}
		if !isStdlib(importPath) && !matchesAny(importPath, rule.external) {
			report(layer + " import is outside the external allowlist")
		}
	}
	return violations
}

func hasPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func containsAny(path string, fragments []string) bool {
	for _, fragment := range fragments {
		if strings.Contains(path+"/", fragment) {
			return true
		}
	}
	return false
}

func isStdlib(importPath string) bool {
	if hasPrefix(importPath, modulePath) {
		return false
	}
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}
