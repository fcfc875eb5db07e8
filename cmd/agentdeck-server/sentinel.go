package main

import "github.com/agentdeck/agentdeck/pkg/sentinel"

// runSentinel starts the sentinel supervisor for the server.
func runSentinel() error {
	return sentinel.Supervise("run")
}
