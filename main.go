package main

import (
	"os"

	"github.com/gui17aume/xcframework-now/cmd"
)

var osExit = os.Exit

func main() {
	osExit(cmd.Execute(os.Stdout, os.Stderr, os.Args[1:]))
}
