package main

import "github.com/tagbox/core/cmd"

func main() {
	cmd.Execute()
}
