package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

const modulePrefix = "ex-otogi-trade/"

type listedPackage struct {
	ImportPath   string
	Imports      []string
	TestImports  []string
	XTestImports []string
}

// layerRule forbids packages under importer from importing any of the
// listed prefixes.
type layerRule struct {
	importer  string
	forbidden []string
	reason    string
}

var layerRules = []layerRule{
	{
		importer:  "pkg/otogi",
		forbidden: []string{"internal/", "modules/", "cmd/"},
		reason:    "pkg/otogi must not import internal/*, modules/* or cmd/*",
	},
	{
		importer:  "internal/kernel",
		forbidden: []string{"internal/driver", "internal/trade", "modules/"},
		reason:    "internal/kernel must stay independent of drivers and modules",
	},
	{
		importer:  "internal/driver",
		forbidden: []string{"internal/kernel", "internal/trade", "modules/"},
		reason:    "internal/driver must only depend on pkg/otogi",
	},
	{
		importer:  "internal/trade",
		forbidden: []string{"pkg/otogi", "internal/kernel", "internal/driver", "modules/"},
		reason:    "internal/trade must not depend on the chat runtime",
	},
	{
		importer:  "modules/",
		forbidden: []string{"internal/kernel", "internal/driver", "cmd/"},
		reason:    "modules/* must reach the runtime through pkg/otogi",
	},
	{
		importer:  "cmd/tradectl",
		forbidden: []string{"internal/kernel", "internal/driver", "modules/"},
		reason:    "cmd/tradectl works offline on stored state only",
	},
}

func main() {
	packages, err := listPackages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "arch-check: %v\n", err)
		os.Exit(1)
	}

	violations := collectViolations(packages)
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(os.Stdout, "arch-check: passed\n")
		return
	}

	_, _ = fmt.Fprintf(os.Stdout, "arch-check: architecture violations:\n")
	for _, violation := range violations {
		_, _ = fmt.Fprintf(os.Stdout, "  - %s\n", violation)
	}
	os.Exit(1)
}

func listPackages() ([]listedPackage, error) {
	cmd := exec.Command("go", "list", "-json", "-test", "./...")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("go list -json -test ./...: %w", err)
	}

	return decodePackages(&stdout)
}

func decodePackages(r io.Reader) ([]listedPackage, error) {
	decoder := json.NewDecoder(r)
	result := make([]listedPackage, 0, 64)
	for {
		var pkg listedPackage
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode go list output: %w", err)
		}
		if pkg.ImportPath == "" {
			continue
		}
		result = append(result, pkg)
	}

	return result, nil
}

func collectViolations(packages []listedPackage) []string {
	found := make(map[string]struct{})

	for _, pkg := range packages {
		imports := append([]string{}, pkg.Imports...)
		imports = append(imports, pkg.TestImports...)
		imports = append(imports, pkg.XTestImports...)

		for _, imported := range imports {
			reason := violationReason(pkg.ImportPath, imported)
			if reason == "" {
				continue
			}
			entry := fmt.Sprintf("%s -> %s (%s)", pkg.ImportPath, imported, reason)
			found[entry] = struct{}{}
		}
	}

	violations := make([]string, 0, len(found))
	for violation := range found {
		violations = append(violations, violation)
	}
	sort.Strings(violations)

	return violations
}

func violationReason(importer, imported string) string {
	// go list -test reports test variants as "path [path.test]".
	importer, _, _ = strings.Cut(importer, " ")
	if !strings.HasPrefix(importer, modulePrefix) || !strings.HasPrefix(imported, modulePrefix) {
		return ""
	}
	importer = strings.TrimPrefix(importer, modulePrefix)
	imported = strings.TrimPrefix(imported, modulePrefix)

	for _, rule := range layerRules {
		if !strings.HasPrefix(importer, rule.importer) {
			continue
		}
		for _, forbidden := range rule.forbidden {
			if strings.HasPrefix(imported, forbidden) {
				return rule.reason
			}
		}
	}

	return ""
}
