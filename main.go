package main

import "github.com/tanq16/mtdown/cmd"

func main() {
	cmd.Execute()
}
