package main

import (
	"context"
	"resultscraper/cmd/resultscraper/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
