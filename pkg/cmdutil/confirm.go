package cmdutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirm prompts y/N on w/r and reports whether the user answered yes.
// When r is not an interactive terminal it returns false without
// prompting, so scripted invocations never hang waiting on stdin.
func Confirm(r *os.File, w io.Writer, prompt string) (bool, error) {
	if !term.IsTerminal(int(r.Fd())) {
		return false, nil
	}
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
