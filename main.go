package main

import "zapreply/cmd"

func main() {
	cmd.Execute()
}
