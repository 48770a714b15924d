package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	var configFlag string
	ctx := newCommandContext(&configFlag)
	err := newRootCommand(ctx).Execute()
	if closeErr := ctx.close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
