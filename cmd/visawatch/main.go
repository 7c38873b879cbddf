package main

import "github.com/example/visawatch/cmd"

func main() {
	cmd.Execute()
}
