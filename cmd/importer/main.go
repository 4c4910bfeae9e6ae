package main

import "github.com/mkral/importer/internal/cli"

func main() {
	cli.Execute()
}
