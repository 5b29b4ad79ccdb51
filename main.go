package main

import (
	"fmt"
	"os"

	"github.com/shivasurya/code-pathfinder/ruleengine/cmd"
)

// osExit is a seam for tests.
var osExit = os.Exit

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		osExit(1)
	}
}
