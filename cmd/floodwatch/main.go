package main

import (
	"os"

	"github.com/JinJiangyue/EUflood-sub000/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
