package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/refract-io/refract/sigstore"
)

// runCheck compares the extracted signatures against the recorded
// store. Any stale class fails the run unless -update re-records them.
func runCheck(env *cmdEnv, update bool) error {
	set, err := extractSet(env)
	if err != nil {
		return err
	}

	storePath := filepath.Join(".refract", "signatures.db")
	if env.man != nil {
		storePath = env.man.StorePath()
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		return err
	}
	store, err := sigstore.Open(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	stale, err := store.Stale(set)
	if err != nil {
		return err
	}

	if update {
		for _, s := range stale {
			if s.Reason == sigstore.ReasonRemoved {
				if err := store.Forget(s.Class); err != nil {
					return err
				}
			}
		}
		if err := store.RecordSet(set); err != nil {
			return err
		}
		fmt.Printf("Recorded %d class signatures in %s\n", len(set.Decls), storePath)
		return nil
	}

	if len(stale) == 0 {
		fmt.Printf("%d classes up to date\n", len(set.Decls))
		return nil
	}
	for _, s := range stale {
		fmt.Fprintf(os.Stderr, "stale: %s\n", s)
	}
	return fmt.Errorf("%d of %d class signatures stale (run with -update to accept)", len(stale), len(set.Decls))
}
