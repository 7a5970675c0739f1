package main

import "github.com/kashguard/go-mpc-oracle/cmd"

func main() {
	cmd.Execute()
}
