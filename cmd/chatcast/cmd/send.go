package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/chatcast/internal/client"
)

// maxStdinMessage bounds a message read from a pipe.
const maxStdinMessage = 1 << 20

var errNoMessage = errors.New("no message: pass it as arguments, with --file, or on stdin")

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Broadcast a message to every enabled, ready target",
	Long: `Type the message into every enabled target whose session is ready, then submit it.

Targets are visited one after another in table order. The command returns when
the whole cycle finished and prints one line per target.

The message comes from the arguments (joined with spaces), from --file, or
from stdin when stdin is not a terminal. Trailing newlines are removed.

Examples:
  chatcast send "Explain Raft in two paragraphs"
  git diff | chatcast send
  chatcast send --file prompt.md --json`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringP("file", "f", "", "read the message from a file")
	sendCmd.Flags().Bool("json", false, "output the cycle result as JSON")
}

// stdinIsTerminal is swapped in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readMessage(args []string, file string, stdin io.Reader) (string, error) {
	var msg string
	switch {
	case len(args) > 0:
		msg = strings.Join(args, " ")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read message file: %w", err)
		}
		msg = string(data)
	case !stdinIsTerminal():
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinMessage+1))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > maxStdinMessage {
			return "", fmt.Errorf("message on stdin exceeds %d bytes", maxStdinMessage)
		}
		msg = string(data)
	default:
		return "", errNoMessage
	}

	msg = strings.TrimRight(msg, "\r\n")
	if strings.TrimSpace(msg) == "" {
		return "", errNoMessage
	}
	return msg, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	msg, err := readMessage(args, file, cmd.InOrStdin())
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	res, err := c.Broadcast(cmd.Context(), msg)
	if err != nil {
		if client.IsStatus(err, http.StatusConflict) {
			return fmt.Errorf("another broadcast is still running; try again when it finishes")
		}
		return explain(err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}
