// Command rh-validate validates FHIR resources on the command line
// against conformance artifacts loaded from disk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	fv "github.com/reason-healthcare/rh-sub009"
	"github.com/reason-healthcare/rh-sub009/engine"
	"github.com/reason-healthcare/rh-sub009/registry"
)

const usage = `rh-validate - FHIR R4 resource validator

Usage:
  rh-validate [options] <file>...
  rh-validate [options] -          (read from stdin)
  cat resource.json | rh-validate -

Examples:
  rh-validate -artifacts ./conformance patient.json
  rh-validate -artifacts ./conformance -profile http://example.org/StructureDefinition/my-patient patient.json
  rh-validate -artifacts ./conformance -output json *.json
  rh-validate -artifacts ./conformance -tx patient.json

Options:
`

type config struct {
	artifactDir string
	profile     string
	output      string
	strict      bool
	noTerms     bool
	quiet       bool
	showVersion bool
	files       []string
}

// fileOutput is the JSON report for one validated input.
type fileOutput struct {
	Resource string     `json:"resource"`
	Valid    bool       `json:"valid"`
	Errors   int        `json:"errors"`
	Warnings int        `json:"warnings"`
	Issues   []fv.Issue `json:"issues,omitempty"`
	Duration string     `json:"duration"`
}

func main() {
	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("rh-validate %s\n", fv.Version)
		os.Exit(0)
	}
	if len(cfg.files) == 0 {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

func parseFlags() *config {
	cfg := &config{}

	flag.StringVar(&cfg.artifactDir, "artifacts", "", "Directory of conformance artifacts to load")
	flag.StringVar(&cfg.profile, "profile", "", "Profile URL to validate against instead of the declared ones")
	flag.StringVar(&cfg.output, "output", "text", "Output format: text, json")
	flag.BoolVar(&cfg.strict, "strict", false, "Treat warnings as errors")
	flag.BoolVar(&cfg.noTerms, "tx", false, "Disable terminology validation")
	flag.BoolVar(&cfg.quiet, "quiet", false, "Suppress progress output")
	flag.BoolVar(&cfg.showVersion, "v", false, "Show version")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.files = flag.Args()
	return cfg
}

func run(cfg *config) int {
	reg := registry.New()
	if cfg.artifactDir != "" {
		stats, err := reg.LoadDir(cfg.artifactDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading artifacts: %v\n", err)
			return 1
		}
		if !cfg.quiet {
			fmt.Fprintf(os.Stderr, "Loaded %d profiles, %d value sets, %d code systems (%d errors)\n",
				stats.Profiles, stats.ValueSets, stats.CodeSystems, stats.Errors)
		}
	}

	var opts []fv.Option
	if cfg.strict {
		opts = append(opts, fv.WithStrictMode(true))
	}
	if cfg.noTerms {
		opts = append(opts, fv.WithBindings(false))
	}
	v := engine.New(reg, opts...)

	hasErrors := false
	outputs := make([]fileOutput, 0, len(cfg.files))

	for _, file := range cfg.files {
		if file == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
				hasErrors = true
				continue
			}
			out, bad := validateOne(v, cfg, "stdin", data)
			outputs = append(outputs, out)
			hasErrors = hasErrors || bad
			continue
		}

		matches, err := filepath.Glob(file)
		if err != nil || len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "No files match: %s\n", file)
			hasErrors = true
			continue
		}
		for _, match := range matches {
			data, err := os.ReadFile(match)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", match, err)
				hasErrors = true
				continue
			}
			out, bad := validateOne(v, cfg, match, data)
			outputs = append(outputs, out)
			hasErrors = hasErrors || bad
		}
	}

	if cfg.output == "json" {
		encoded, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Println(string(encoded))
	}

	if hasErrors {
		return 1
	}
	return 0
}

func validateOne(v *engine.Validator, cfg *config, name string, data []byte) (fileOutput, bool) {
	start := time.Now()

	var result *fv.Result
	var err error
	if cfg.profile != "" {
		result, err = v.ValidateWithProfile(context.Background(), data, cfg.profile)
	} else {
		result, err = v.Validate(context.Background(), data)
	}
	elapsed := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error validating %s: %v\n", name, err)
		return fileOutput{Resource: name, Valid: false, Errors: 1, Duration: elapsed.String()}, true
	}
	defer result.Release()

	out := fileOutput{
		Resource: name,
		Valid:    result.Valid,
		Errors:   result.ErrorCount(),
		Warnings: result.WarningCount(),
		Issues:   append([]fv.Issue(nil), result.Issues...),
		Duration: elapsed.String(),
	}

	if cfg.output == "text" {
		printText(cfg, out)
	}
	return out, !result.Valid
}

func printText(cfg *config, out fileOutput) {
	status := "VALID"
	if !out.Valid {
		status = "INVALID"
	}
	fmt.Printf("%s: %s (%d errors, %d warnings, %s)\n",
		out.Resource, status, out.Errors, out.Warnings, out.Duration)
	for _, issue := range out.Issues {
		if cfg.quiet && issue.Severity == fv.SeverityInformation {
			continue
		}
		loc := ""
		if p := issue.Path(); p != "" {
			loc = " at " + p
		}
		fmt.Printf("  %s [%s]%s: %s\n",
			strings.ToUpper(string(issue.Severity)), issue.Code, loc, issue.Diagnostics)
	}
}
