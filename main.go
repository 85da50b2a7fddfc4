package main

import (
	"daily-coin-report/internal/cli"
)

func main() {
	cli.Execute()
}
