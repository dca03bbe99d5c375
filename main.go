package main

import "github.com/fanmate/platform/cmd"

func main() {
	cmd.Execute()
}
