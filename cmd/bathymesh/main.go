package main

import "github.com/aalvaropc/bathymesh/internal/cli"

func main() {
	cli.Execute()
}
