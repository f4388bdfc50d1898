package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var stdin = bufio.NewReader(os.Stdin)

func Prompt(message string) (string, error) {
	fmt.Printf("%s: ", BrightWhite(message))
	text, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// PromptPassword hides the input when stdin is a terminal.
func PromptPassword(message string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return Prompt(message)
	}
	fmt.Printf("%s: ", BrightWhite(message))
	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

func PromptWithDefault(message, defaultValue string) (string, error) {
	fmt.Printf("%s [%s]: ", BrightWhite(message), Dim(defaultValue))
	text, err := stdin.ReadString('\n')
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return defaultValue, nil
	}
	return trimmed, nil
}
