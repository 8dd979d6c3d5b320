// abac-config validates, converts and summarizes policy bundle files.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/complyon/abac"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		handleValidate()
	case "convert":
		handleConvert()
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("abac-config - policy bundle tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  abac-config validate <file>           - validate a bundle")
	fmt.Println("  abac-config convert <input> <output>  - convert between formats")
	fmt.Println("  abac-config stats <file>              - show bundle statistics")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: abac-config validate <file>")
		os.Exit(1)
	}
	b, err := abac.LoadBundleFile(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading bundle: %v\n", err)
		os.Exit(1)
	}
	if err := b.Validate(); err != nil {
		fmt.Printf("Invalid bundle: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s is valid\n", os.Args[2])
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: abac-config convert <input> <output>")
		os.Exit(1)
	}
	input, output := os.Args[2], os.Args[3]
	b, err := abac.LoadBundleFile(input)
	if err != nil {
		fmt.Printf("Error loading bundle: %v\n", err)
		os.Exit(1)
	}
	if err := b.Validate(); err != nil {
		fmt.Printf("Invalid bundle: %v\n", err)
		os.Exit(1)
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(output)) {
	case ".yaml", ".yml":
		data, err = b.ToYAML()
	case ".json":
		data, err = b.ToJSON()
	default:
		fmt.Printf("Unsupported output format: %s\n", filepath.Ext(output))
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error encoding bundle: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fmt.Printf("Error writing %s: %v\n", output, err)
		os.Exit(1)
	}
	fmt.Printf("Converted %s -> %s\n", input, output)
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: abac-config stats <file>")
		os.Exit(1)
	}
	b, err := abac.LoadBundleFile(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading bundle: %v\n", err)
		os.Exit(1)
	}

	allow, deny := 0, 0
	tenants := map[string]bool{}
	for _, p := range b.Policies {
		if p.Effect == abac.EffectAllow {
			allow++
		} else {
			deny++
		}
		if p.TenantID != nil {
			tenants[*p.TenantID] = true
		}
	}

	fmt.Printf("Bundle: %s (version %d)\n", os.Args[2], b.Version)
	fmt.Printf("  Permissions: %d\n", len(b.Permissions))
	fmt.Printf("  Roles:       %d\n", len(b.Roles))
	fmt.Printf("  Assignments: %d\n", len(b.Assignments))
	fmt.Printf("  Policies:    %d (%d allow, %d deny)\n", len(b.Policies), allow, deny)
	fmt.Printf("  Field rules: %d\n", len(b.FieldRules))
	fmt.Printf("  Tenants referenced: %d\n", len(tenants))
}
