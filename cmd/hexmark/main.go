package main

import "github.com/drawscan/hexmark/cmd/hexmark/cmd"

func main() {
	cmd.Execute()
}
