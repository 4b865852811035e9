package main

import "browserq/cmd"

func main() {
	cmd.Run()
}
