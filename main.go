package main

import "slack-code-review/cmd"

func main() {
	cmd.Execute()
}
