package main

import "github.com/zfogg/daybook/internal/cli/cmd"

func main() {
	cmd.Execute()
}
