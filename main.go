package main

import "github.com/KaramelBytes/csvagent/cmd"

func main() {
	cmd.Execute()
}
