//go:build mage

// Package main contains Mage build targets for metasearch developer tooling.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	".secrets",
	"data",
}

// Init creates the local working directories.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "metasearch"
	cmdPkg  = "./cmd/metasearch"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Seed imports the bundled provider presets into the local database.
func Seed() error {
	mg.Deps(Build, Init)
	return sh.RunV(filepath.Join(binDir, binName), "--db", filepath.Join("data", "metasearch.db"),
		"providers", "import", filepath.Join("configs", "providers.yaml"))
}

// statsRoots are the directories whose packages Stats reports on.
var statsRoots = []string{"cmd", "internal", "pkg"}

// component is one Go package directory and its non-blank line counts.
type component struct {
	dir        string
	files      int
	prod, test int
}

// Stats prints non-blank Go line counts per package (connector, search,
// relevancy and so on), split into production and test code.
func Stats() error {
	byDir := map[string]*component{}
	for _, root := range statsRoots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || filepath.Ext(path) != ".go" {
				return err
			}
			n, err := nonBlankLines(path)
			if err != nil {
				return err
			}
			dir := filepath.ToSlash(filepath.Dir(path))
			c, ok := byDir[dir]
			if !ok {
				c = &component{dir: dir}
				byDir[dir] = c
			}
			c.files++
			if strings.HasSuffix(path, "_test.go") {
				c.test += n
			} else {
				c.prod += n
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	comps := make([]*component, 0, len(byDir))
	for _, c := range byDir {
		comps = append(comps, c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].prod > comps[j].prod })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "package\tfiles\tprod\ttest\tratio\t")
	var total component
	for _, c := range comps {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t\n", strings.TrimPrefix(c.dir, "internal/"), c.files, c.prod, c.test, testRatio(c))
		total.files += c.files
		total.prod += c.prod
		total.test += c.test
	}
	fmt.Fprintf(w, "total\t%d\t%d\t%d\t%s\t\n", total.files, total.prod, total.test, testRatio(&total))
	return w.Flush()
}

// testRatio is test lines per production line.
func testRatio(c *component) string {
	if c.prod == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", float64(c.test)/float64(c.prod))
}

func nonBlankLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return n, nil
}
