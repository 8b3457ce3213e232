package main

import "github.com/coursehub/modhub/cmd"

func main() {
	cmd.Execute()
}
