package main

import "github.com/avelios/terminal-gateway/cmd"

func main() {
	cmd.Execute()
}
