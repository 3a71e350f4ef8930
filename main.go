package main

import "github.com/curaious/projecthub/cmd"

func main() {
	cmd.Execute()
}
