package main

import "github.com/agentic-research/astgraph/cmd"

func main() {
	cmd.Execute()
}
