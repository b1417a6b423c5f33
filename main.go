package main

import (
	"github.com/icheng/autopunch/cmd"
)

// main is the entry point for the autopunch CLI.
func main() {
	cmd.Execute()
}
