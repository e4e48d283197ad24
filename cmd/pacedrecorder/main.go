package main

import "github.com/bryanchriswhite/PacedRecorder/cmd/pacedrecorder/commands"

func main() {
	commands.Execute()
}
