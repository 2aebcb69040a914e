package main

import (
	"fmt"
	"os"

	"github.com/refract-io/refract/decl"
)

// runExport writes the declaration set as canonical CBOR, the feed a
// host runtime loads to learn the native surface without compiling Go.
func runExport(env *cmdEnv, output string) error {
	set, err := extractSet(env)
	if err != nil {
		return err
	}

	data, err := decl.EncodeSet(set)
	if err != nil {
		return err
	}

	if output == "" || output == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d classes (%d bytes) to %s\n", len(set.Decls), len(data), output)
	return nil
}
