package main

import "github.com/lightkeepers/fieldsync/cmd"

func main() {
	cmd.Execute()
}
