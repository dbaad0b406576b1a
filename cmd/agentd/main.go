// Command agentd is the backend service a browser IDE drives: session
// management, the turn engine (plan/build/review), tool execution,
// checkpoint/revert, and the WebSocket/HTTP transport the IDE speaks.
package main

func main() {
	Execute()
}
