package binance

import (
	"context"
	"errors"
	"net"

	"github.com/adshao/go-binance/v2/common"

	"github.com/xdaguy/LTCBOT/internal/model"
)

// Binance futures error codes that map to a specific reason.
var apiReasons = map[int64]model.ReasonCode{
	-2018: model.ReasonInsufficientBalance, // balance insufficient
	-2019: model.ReasonInsufficientBalance, // margin insufficient
	-1013: model.ReasonQuantityBounds,      // filter failure (LOT_SIZE / MIN_NOTIONAL)
	-4003: model.ReasonQuantityBounds,      // quantity less than or equal to zero
	-4005: model.ReasonQuantityBounds,      // quantity greater than max quantity
	-4164: model.ReasonQuantityBounds,      // notional below minimum
	-1111: model.ReasonPrecision,           // precision over the maximum defined
	-2022: model.ReasonReduceOnly,          // reduce-only order rejected
	-1007: model.ReasonTimeout,             // timeout waiting for backend response
}

// Classify maps an exchange or transport error to a ReasonCode.
func Classify(err error) model.ReasonCode {
	if err == nil {
		return model.ReasonOK
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if r, ok := apiReasons[apiErr.Code]; ok {
			return r
		}
		return model.ReasonRejected
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return model.ReasonTimeout
		}
		return model.ReasonNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.Canceled) {
		return model.ReasonNetwork
	}
	return model.ReasonRejected
}
