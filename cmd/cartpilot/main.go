package main

import "cartpilot/cmd/cartpilot/cmd"

func main() {
	cmd.Execute()
}
