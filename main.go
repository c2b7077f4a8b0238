package main

import "github.com/quantops/qubot/cmd"

func main() {
	cmd.Execute()
}
