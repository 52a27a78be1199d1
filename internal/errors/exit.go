package errors

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"
)

// Exit codes, from the Foundry catalog.
const (
	ExitOK              = foundry.ExitSuccess
	ExitFailure         = foundry.ExitFailure
	ExitInvalidArgument = foundry.ExitInvalidArgument
	ExitNotFound        = foundry.ExitFileNotFound
	ExitFileRead        = foundry.ExitFileReadError
	ExitFileWrite       = foundry.ExitFileWriteError
	ExitUnavailable     = foundry.ExitExternalServiceUnavailable
	ExitInterrupted     = foundry.ExitSignalInt
)

// ExitCode maps err onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}
	switch code, _ := Classify(err); code {
	case CodeInvalidArgument, CodeSignedURLDisabled:
		return ExitInvalidArgument
	case CodeNotFound, CodeContainerNotFound:
		return ExitNotFound
	case CodeServiceUnavailable, CodeThrottled, CodeAccessDenied, CodeInvalidCredentials:
		return ExitUnavailable
	}
	return ExitFailure
}

// ExitWithCode logs err and terminates the process with its exit code.
func ExitWithCode(logger *zap.Logger, msg string, err error) {
	code := ExitCode(err)
	if logger != nil {
		logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
		_ = logger.Sync()
	} else {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	}
	os.Exit(code)
}
