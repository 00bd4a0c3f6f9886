package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
)

// RunLines drives the session from in, writing each echo to out. It returns
// nil on quit, end of input or cancellation.
func RunLines(ctx context.Context, s *Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			if isQuit(line) {
				return nil
			}
			echo, err := s.Exchange(line)
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ErrClosed) {
					return nil
				}
				return err
			}
			if _, err := fmt.Fprintln(out, echo); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
}
