// ABOUTME: Entry point for the henk binary
// ABOUTME: Hands off to the cobra command tree
package main

import "github.com/callhenk/henk-sub004/cli"

func main() {
	cli.Execute()
}
