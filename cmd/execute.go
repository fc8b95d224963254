// Package cmd routes command-line invocations: serve (default), migrate,
// version, and help.
package cmd

import (
	"fmt"
	"os"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the entry point called from main. It routes to the requested
// command; running without arguments starts the API server.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			return runMigrate()
		case "serve":
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	return runServe()
}

// checkRequiredEnv verifies GEMINI_API_KEY is present before the server
// starts, with setup instructions when it is not.
func checkRequiredEnv() error {
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "OmniLearn requires a Gemini API key to embed and answer questions.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")

		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}

func printVersion() {
	fmt.Printf("OmniLearn %s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Println("OmniLearn - learning assistant over your own sources")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  omnilearn                  Start the HTTP API server (default)")
	fmt.Println("  omnilearn serve [addr]     Start the server on a specific address")
	fmt.Println("  omnilearn migrate          Run database migrations and exit")
	fmt.Println("  omnilearn version          Show version information")
	fmt.Println("  omnilearn help             Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY             Required: Gemini API key")
	fmt.Println("  DATABASE_URL               Optional: overrides postgres_* config values")
	fmt.Println("  OMNILEARN_API_PORT         Optional: API port (default 8000)")
	fmt.Println("  OMNILEARN_LOG_LEVEL        Optional: debug|info|warn|error")
	fmt.Println("  OTLP_ENDPOINT              Optional: enable trace export, e.g. localhost:4318")
}
