package main

import (
	"github.com/sheldongordon4/coherence-engine/internal/cli"
)

func main() {
	cli.Execute()
}
