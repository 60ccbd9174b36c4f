package main

import "go-chatty-client/cmd/chatctl/cmd"

func main() {
	cmd.Execute()
}
