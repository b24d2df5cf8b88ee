// The main package for the stockboard executable.
package main

import (
	"github.com/twstocklab/stockboard/cmd"
)

func main() {
	cmd.Execute()
}
