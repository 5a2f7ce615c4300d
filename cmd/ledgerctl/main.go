package main

import "opsledger/backend/internal/cmd"

func main() {
	cmd.Execute()
}
