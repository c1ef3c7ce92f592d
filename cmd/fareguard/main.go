package main

import "github.com/ogulcanaydogan/fare-guardian/internal/cli"

func main() {
	cli.Execute()
}
