package config

// Version is the netproxy release, overridden at build time with
// -ldflags "-X github.com/Sternrassler/resilient-net/internal/config.Version=...".
var Version = "0.1.0"
