// Command possum manages a possum store from the shell.
package main

import "github.com/mesh-intelligence/possum/internal/cli"

func main() {
	cli.Execute()
}
