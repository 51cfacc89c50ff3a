package main

import "github.com/switchkit/eventsocket/internal/cmd"

func main() {
	cmd.Execute()
}
