package main

import "github.com/mvp-joe/mvicfg/internal/cli"

func main() {
	cli.Execute()
}
