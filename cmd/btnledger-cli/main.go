package main

import "github.com/bituncoin/btnledger/cmd/btnledger-cli/cmd"

func main() {
	cmd.Execute()
}
