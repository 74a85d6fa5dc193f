package main

import (
	"github.com/burrow-dev/burrow/cmd"
	"github.com/burrow-dev/burrow/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
