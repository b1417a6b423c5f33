package cmd

// Version is the application version, intended to be set at build time:
// go build -ldflags "-X github.com/icheng/autopunch/cmd.Version=1.0.0"
var Version = "1.0"
