package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/rtmp-auth/internal/cli"
)

func main() {
	if err := cli.NewApp().Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
