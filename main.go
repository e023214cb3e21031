package main

import "github.com/castaway-tv/castaway/cmd"

func main() {
	cmd.Execute()
}
