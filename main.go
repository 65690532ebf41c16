package main

import "github.com/shawkym/room-upgrader/cmd"

func main() {
	cmd.Execute()
}
