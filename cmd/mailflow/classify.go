package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Strob0t/mailflow/internal/adapter/forward"
	"github.com/Strob0t/mailflow/internal/domain/email"
	"github.com/Strob0t/mailflow/internal/logger"
	"github.com/Strob0t/mailflow/internal/port/dispatch"
)

var classifyFlags struct {
	url     string
	file    string
	timeout time.Duration
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Submit a normalized email to the classifier and print the result",
	Long: `Reads a NormalizedEmail JSON document ({sender, subject, body, received_time})
from --file (or stdin with "-") and POSTs it to the classifier. The response is
printed indented when stdout is a terminal. A non-2xx answer exits with status 1.`,
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyFlags.url, "url", "http://localhost:8001/classify", "classifier endpoint")
	f.StringVarP(&classifyFlags.file, "file", "f", "", `path to the email JSON, "-" for stdin (required)`)
	f.DurationVar(&classifyFlags.timeout, "timeout", 2*time.Minute, "request timeout")

	_ = classifyCmd.MarkFlagRequired("file")
}

func runClassify(cmd *cobra.Command, _ []string) error {
	in, err := readEmail(cmd.InOrStdin(), classifyFlags.file)
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	ctx, cancel := context.WithTimeout(logger.WithRequestID(cmd.Context(), requestID), classifyFlags.timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	body, err := forward.NewClient(classifyFlags.timeout).PostJSON(ctx, classifyFlags.url, in)
	if err != nil {
		var se *dispatch.StatusError
		if errors.As(err, &se) && se.Body != "" {
			printJSON(out, []byte(se.Body))
		}
		return fmt.Errorf("classify (request %s): %w", requestID, err)
	}
	printJSON(out, body)
	return nil
}

// readEmail loads and validates the email so malformed input is reported
// locally instead of as a 400 from the classifier.
func readEmail(stdin io.Reader, path string) (email.NormalizedEmail, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: path is an operator-supplied CLI argument
	}
	if err != nil {
		return email.NormalizedEmail{}, fmt.Errorf("read email: %w", err)
	}

	var e email.NormalizedEmail
	if err := json.Unmarshal(data, &e); err != nil {
		return email.NormalizedEmail{}, fmt.Errorf("parse email: %w", err)
	}
	if err := e.Validate(); err != nil {
		return email.NormalizedEmail{}, fmt.Errorf("invalid email: %w", err)
	}
	return e, nil
}

// printJSON writes data, indented when w is a terminal.
func printJSON(w io.Writer, data []byte) {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: fd fits in int
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}
	_, _ = w.Write(data)
	_, _ = io.WriteString(w, "\n")
}
