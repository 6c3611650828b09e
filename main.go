package main

import "github.com/killallgit/turnstream/cmd"

func main() {
	cmd.Execute()
}
