package main

import (
	"github.com/robotalks/prop.go/pkg/cli/sh"
	"github.com/robotalks/prop.go/pkg/fleet"
)

//go-build: CGO_ENABLED=0

func init() {
	fleet.SetupFlags()
}

func main() {
	sh.Main()
}
