package main

// Build-time variables, set via -ldflags:
//
//	go build -ldflags="-X main.commitHash=$(git rev-parse --short HEAD) -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/story-cli
var (
	commitHash = "dev"
	buildTime  = "unknown"
)
