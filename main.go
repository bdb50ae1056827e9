package main

import "github.com/andresmejia3/verdict/cmd"

func main() {
	cmd.Execute()
}
