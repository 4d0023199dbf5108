package main

import "github.com/vietddude/archiver/internal/cli"

func main() {
	cli.Execute()
}
