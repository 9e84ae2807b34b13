package main

import "labelscan/internal/cli"

func main() {
	cli.Execute()
}
