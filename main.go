package main

import "github.com/KaramelBytes/veiltext-cli/cmd"

func main() {
	cmd.Execute()
}
