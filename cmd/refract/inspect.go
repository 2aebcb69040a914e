package main

import (
	"fmt"
	"strings"

	"github.com/refract-io/refract/decl"
)

// runInspect prints the extracted surface of every class, property and
// symbol the way the host runtime will see it.
func runInspect(env *cmdEnv) error {
	set, err := extractSet(env)
	if err != nil {
		return err
	}
	if len(set.Decls) == 0 {
		fmt.Println("no classes declared")
		return nil
	}

	for _, cd := range set.Decls {
		fmt.Printf("class %s (%s)\n", cd.Name, cd.QualifiedName)
		if cd.Doc != "" {
			fmt.Printf("  # %s\n", firstLine(cd.Doc))
		}
		for i := range cd.Fields {
			f := &cd.Fields[i]
			ro := ""
			if f.ReadOnly {
				ro = " [readonly]"
			}
			fmt.Printf("  property    %-18s %s%s\n", f.Name, f.Type.String(), ro)
		}
		for i := range cd.Ctors {
			ct := &cd.Ctors[i]
			fmt.Printf("  constructor %s(%s)\n", ct.GoName, paramList(ct.Params))
		}
		for i := range cd.Methods {
			md := &cd.Methods[i]
			kind := "method"
			if md.IsStatic {
				kind = "static"
			}
			result := ""
			if md.Result != nil {
				result = " -> " + md.Result.String()
			}
			fmt.Printf("  %-11s %s(%s)%s\n", kind, md.Symbol, paramList(md.Params), result)
		}
		fmt.Printf("  hash        %s\n", decl.Hash(cd))
		fmt.Println()
	}
	fmt.Printf("%d classes\n", len(set.Decls))
	return nil
}

func paramList(params []decl.ParamDecl) string {
	parts := make([]string, len(params))
	for i := range params {
		parts[i] = params[i].Type.String()
	}
	return strings.Join(parts, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
