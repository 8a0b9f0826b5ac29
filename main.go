package main

import (
	"os"

	"github.com/ValentinKolb/bdbtool/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
