package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "run", "run-once":
		return runPipeline(args[1:])
	case "clear":
		return runClear(args[1:])
	case "worker":
		return runWorker(args[1:])
	case "serve":
		return runServe(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	case "stories":
		return runStories(args[1:])
	case "stats":
		return runStats(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "storify CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  storify <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database and state store access")
	fmt.Fprintln(os.Stderr, "  migrate   Apply the database schema")
	fmt.Fprintln(os.Stderr, "  ingest    Load annotated tweets from JSON or JSON-lines files")
	fmt.Fprintln(os.Stderr, "  validate  Validate annotated tweet files against the payload schema")
	fmt.Fprintln(os.Stderr, "  run       Cluster the current window and advance stories once")
	fmt.Fprintln(os.Stderr, "  run-once  Alias for run")
	fmt.Fprintln(os.Stderr, "  clear     Drop the active stories of one or more keys")
	fmt.Fprintln(os.Stderr, "  worker    Consume mark_as_spam tasks")
	fmt.Fprintln(os.Stderr, "  serve     Start the read-only story API")
	fmt.Fprintln(os.Stderr, "  daemon    Run scheduler, worker and API under one supervisor")
	fmt.Fprintln(os.Stderr, "  stories   List closed stories")
	fmt.Fprintln(os.Stderr, "  stats     Show per-key document and story counts for a UTC day")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"storify <command> -h\" for command-specific flags.")
}
