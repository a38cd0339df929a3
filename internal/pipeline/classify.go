package pipeline

import (
	"context"
	"errors"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Classify maps a cycle error to its result label. Deadline expiry wins over
// the error type it surfaced through.
func Classify(err error) string {
	if err == nil {
		return ResultOK
	}
	var (
		fe *model.DataFetchError
		ie *model.InvalidInputError
		oe *model.OrderExecutionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ResultTimeout
	case errors.As(err, &oe):
		if oe.Reason == model.ReasonTimeout {
			return ResultTimeout
		}
		return ResultExecError
	case errors.As(err, &ie):
		return ResultInvalidInput
	case errors.As(err, &fe):
		return ResultFetchError
	}
	return ResultError
}
