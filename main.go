package main

import "github.com/notargets/goamr/cmd"

func main() {
	cmd.Execute()
}
