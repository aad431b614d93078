package main

import (
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/cmd/coach/cmd"
)

func main() {
	cmd.Execute()
}
