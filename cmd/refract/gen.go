package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/refract-io/refract/gen"
)

// runGen writes Go registration glue for the extracted classes. With a
// manifest the file lands in the emit directory; without one it goes to
// stdout or -o.
func runGen(env *cmdEnv, output string) error {
	set, err := extractSet(env)
	if err != nil {
		return err
	}

	opts := gen.Options{}
	if env.man != nil {
		opts.Package = env.man.Emit.Package
		opts.LegacyMapValues = env.man.Emit.LegacyMapValues
	}
	code, err := gen.File(set, opts)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err = os.Stdout.Write(code)
		return err
	}

	path := output
	if path == "" {
		if env.man == nil {
			_, err = os.Stdout.Write(code)
			return err
		}
		dir := env.man.EmitDirPath()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path = filepath.Join(dir, "classes.go")
	}
	if err := os.WriteFile(path, code, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %s (%d classes)\n", path, len(set.Decls))
	return nil
}
