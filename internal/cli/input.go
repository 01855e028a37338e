package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// readSecret is a test seam for term.ReadPassword.
var readSecret = term.ReadPassword

// readToken prompts for an access token on the terminal without echo.
func readToken() ([]byte, error) {
	fmt.Print("Paste access token: ")
	token, err := readSecret(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return nil, err
	}
	return token, nil
}
