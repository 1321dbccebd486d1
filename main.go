package main

import (
	"github.com/filebay/filebay/cmd"
)

func main() {
	cmd.Execute()
}
