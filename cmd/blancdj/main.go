// Command blancdj runs the two-deck mixing engine as a server or headless
// player.
package main

func main() {
	Execute()
}
