/*
main.go - Application entry point

PURPOSE:
  The pif command runs the PIF pipeline: the HTTP server, one-shot
  submissions and promotions, wide-view reports and reporting-period
  maintenance.

COMMANDS:
  serve                      Start the HTTP API
  validate FILE --site S     Dry-run validation of a batch file
  submit FILE --site S       Validate, stage and merge a batch file
  promote SITE               archive_approved(SITE)
  report STORE [--site S]    Wide cost view of inflight or approved
  period get | set Y M       Reporting period
  migrate                    Apply schema migrations and print the version

CONFIGURATION:
  --config points at a YAML file (default: pif.yaml, optional).
  Environment variables (PIF_*) override the file; --db and --log-level
  override both.

EXAMPLES:
  pif serve --port 3000
  pif submit batch.yaml --site ANO --by jdoe
  pif promote ANO
  pif period set 2025 3
  pif report approved --site ANO --format json

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
