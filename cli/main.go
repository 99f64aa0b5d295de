package main

import (
	"github.com/awnumar/memguard"

	"github.com/UriL0x/crypto-proyecto/cli/cmd"
)

func main() {
	// Purge secure memory on interrupt instead of leaving key material
	// behind in a core dump.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	cmd.Execute()
}
