package main

import "logistics-recon/cmd/mail-sync/cmd"

func main() {
	cmd.Execute()
}
