package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/csweichel/notefs/cmd"
)

func main() {
	cmd.Execute()
}
