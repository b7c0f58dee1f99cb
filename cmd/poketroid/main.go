package main

import (
	"context"
	"fmt"
	"os"

	"github.com/f1v3nt5/poketroid/internal/app"
)

func main() {
	ctx := context.Background()
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "poketroid:", err)
		os.Exit(1)
	}
}
