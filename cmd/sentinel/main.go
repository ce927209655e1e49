package main

import (
	"github.com/oryxcart/sentinel/cmd/sentinel/commands"
)

func main() {
	commands.Execute()
}
