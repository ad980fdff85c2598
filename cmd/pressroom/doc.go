// Command pressroom is the newsletter pipeline CLI: it serves the workflow
// HTTP API and provides admin commands for issues, feeds, and configuration.
package main
