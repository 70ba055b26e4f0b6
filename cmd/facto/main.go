// Command facto is the offline evidence-bundle verifier (C9) CLI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/facto-ai/facto/pkg/verify"
	"github.com/facto-ai/facto/pkg/wire"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing: it accepts args and writers instead
// of touching os.Args/os.Stdout/os.Stderr directly.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "facto — cryptographically-verifiable audit trails for AI agent activity")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  facto verify --bundle <path> [--json] [--strict]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  --bundle   path to an evidence bundle JSON document (REQUIRED)")
	fmt.Fprintln(w, "  --json     print the report as JSON instead of a human-readable summary")
	fmt.Fprintln(w, "  --strict   fail verification if any event lacks a covering Merkle proof")
}

// runVerifyCmd implements `facto verify`: it replays the canonicalizer,
// hasher, signer, session chain, and Merkle engine over a bundle's
// contents without trusting anything else.
//
// Exit codes:
//
//	0 = verification passed
//	1 = verification failed
//	2 = runtime error (bad flags, unreadable file, malformed bundle)
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundlePath string
		jsonOutput bool
		strict     bool
	)
	cmd.StringVar(&bundlePath, "bundle", "", "Path to an evidence bundle JSON document (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.BoolVar(&strict, "strict", false, "Fail if any event lacks a covering Merkle proof")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" {
		fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot read bundle: %v\n", err)
		return 2
	}

	bundle, err := wire.DecodeEvidenceBundle(data)
	if err != nil {
		fmt.Fprintf(stderr, "Error: cannot parse bundle: %v\n", err)
		return 2
	}

	report := verify.VerifyBundle(bundle, verify.Options{Strict: strict})

	if jsonOutput {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else {
		printHumanReport(stdout, bundlePath, report)
	}

	if !report.IsValid {
		return 1
	}
	return 0
}

func printHumanReport(w io.Writer, bundlePath string, report *verify.Report) {
	if report.IsValid {
		fmt.Fprintln(w, "PASS: evidence bundle verified")
	} else {
		fmt.Fprintln(w, "FAIL: evidence bundle failed verification")
	}
	fmt.Fprintf(w, "Bundle:     %s\n", bundlePath)
	fmt.Fprintf(w, "Hashes:     %d valid / %d invalid\n", report.Hashes.Valid, report.Hashes.Invalid)
	fmt.Fprintf(w, "Signatures: %d valid / %d invalid\n", report.Signatures.Valid, report.Signatures.Invalid)
	fmt.Fprintf(w, "Chain:      valid=%t\n", report.Chain.Valid)
	fmt.Fprintf(w, "Merkle:     %d valid / %d total\n", report.Merkle.Valid, report.Merkle.Total)
	for _, issue := range report.Issues {
		fmt.Fprintf(w, "  - [%s] facto_id=%s session_id=%s: %s\n", issue.Kind, issue.FactoID, issue.SessionID, issue.Detail)
	}
}
