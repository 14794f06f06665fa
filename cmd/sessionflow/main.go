// Command sessionflow serves the session and identity demo over HTTP.
package main

import "github.com/MrEthical07/sessionflow/cmd/sessionflow/cmd"

func main() {
	cmd.Execute()
}
