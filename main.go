package main

import "github.com/streamgate/streamgate/cmd"

func main() {
	cmd.Execute()
}
