package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/okian/arena/internal/adapters/http/client"
)

// Exit codes for different failure modes.
const (
	ExitSuccess  = 0
	ExitError    = 1
	ExitRejected = 2 // the server refused the request
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			os.Exit(ExitRejected)
		}
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
