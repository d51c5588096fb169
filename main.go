package main

import "github.com/Ananth-NQI/wamirror-backend/cmd"

func main() {
	cmd.Execute()
}
