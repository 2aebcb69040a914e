// Refract CLI - extracts class declarations from Go packages and writes
// inspection listings, CBOR declaration feeds, registration glue and
// signature checks.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/refract-io/refract/decl"
	"github.com/refract-io/refract/extract"
	"github.com/refract-io/refract/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var (
	chdir      = flag.String("C", "", "run as if started in this directory")
	output     = flag.String("o", "", "output file for export and gen ('-' for stdout)")
	classNames = flag.String("classes", "", "comma-separated class allowlist (overrides the manifest)")
	update     = flag.Bool("update", false, "with check: record the current signatures and succeed")
	verbose    = flag.Bool("v", false, "verbose logging")
	quiet      = flag.Bool("q", false, "errors only")
	version    = flag.Bool("version", false, "print version and exit")
)

const versionStr = "0.4.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Refract - class extraction and binding glue for Go packages\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  refract [options] <command> [package]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  inspect   print the extracted class surface\n")
		fmt.Fprintf(os.Stderr, "  export    write the declaration set as CBOR\n")
		fmt.Fprintf(os.Stderr, "  gen       write Go registration glue for the extracted classes\n")
		fmt.Fprintf(os.Stderr, "  check     compare extracted signatures against the recorded store\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nThe package argument is a Go package pattern. When omitted, the\n")
		fmt.Fprintf(os.Stderr, "nearest %s supplies it.\n", manifest.File)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  refract inspect ./geometry     # Show classes declared in ./geometry\n")
		fmt.Fprintf(os.Stderr, "  refract gen                    # Use refract.toml, write the emit dir\n")
		fmt.Fprintf(os.Stderr, "  refract -o decls.cbor export   # Export the manifest package\n")
		fmt.Fprintf(os.Stderr, "  refract -update check          # Re-record changed signatures\n")
	}
	flag.Parse()

	if *version {
		fmt.Printf("refract version %s\n", versionStr)
		os.Exit(0)
	}

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	if *quiet {
		verbosity = -1
	}
	commonlog.Configure(verbosity, nil)

	if *chdir != "" {
		if err := os.Chdir(*chdir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	switch args[0] {
	case "inspect", "export", "gen", "check":
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q (use inspect, export, gen or check)\n", args[0])
		os.Exit(2)
	}

	env, err := loadEnv(args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "inspect":
		err = runInspect(env)
	case "export":
		err = runExport(env, *output)
	case "gen":
		err = runGen(env, *output)
	case "check":
		err = runCheck(env, *update)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cmdEnv carries the resolved manifest and extraction target for one
// invocation.
type cmdEnv struct {
	man     *manifest.Manifest // nil when no refract.toml is in reach
	pattern string
	classes []string
}

func loadEnv(args []string) (*cmdEnv, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("expected at most one package argument, got %d", len(args))
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	man, err := manifest.FindAndLoad(cwd)
	if err != nil {
		return nil, err
	}

	env := &cmdEnv{man: man}
	if len(args) == 1 {
		env.pattern = args[0]
	}
	if man != nil {
		if env.pattern == "" {
			env.pattern = man.Extract.Package
		}
		env.classes = man.Extract.Classes
	}
	if *classNames != "" {
		env.classes = nil
		for _, name := range strings.Split(*classNames, ",") {
			if name = strings.TrimSpace(name); name != "" {
				env.classes = append(env.classes, name)
			}
		}
	}
	if env.pattern == "" {
		return nil, fmt.Errorf("no package argument and no %s in reach of the working directory", manifest.File)
	}
	if man != nil && man.Extract.Mode == "reflect" {
		return nil, fmt.Errorf("extract.mode is reflect; reflect-mode classes register themselves in hosting code and cannot be extracted from the command line")
	}
	return env, nil
}

// extractSet loads the target package. Skipped members are warnings,
// not failures.
func extractSet(env *cmdEnv) (*decl.Set, error) {
	var opts []extract.PackageOption
	if len(env.classes) > 0 {
		opts = append(opts, extract.WithClasses(env.classes...))
	}
	set, derrs, err := extract.Package(env.pattern, opts...)
	if err != nil {
		return nil, err
	}
	for _, de := range derrs {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", de)
	}
	return set, nil
}
