package aliyun

import (
	"errors"
	"strings"

	aliErrors "github.com/aliyun/alibaba-cloud-sdk-go/sdk/errors"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
)

// classify maps an SDK error onto the engine's fault taxonomy.
//
// The SDK surfaces remote rejections as ServerError (carrying the HTTP
// status) and local failures (DNS, timeouts, unreachable endpoint) as
// ClientError, so the latter are network faults here.
func classify(op string, err error) *domain.APIError {
	var serverErr *aliErrors.ServerError
	if errors.As(err, &serverErr) {
		code := serverErr.ErrorCode()
		if serverErr.HttpStatus() >= 500 {
			return &domain.APIError{Kind: domain.FaultServer, Op: op, Code: code, Err: err}
		}
		return &domain.APIError{
			Kind:        domain.FaultClient,
			Op:          op,
			Code:        code,
			RateLimited: isThrottling(code),
			Err:         err,
		}
	}

	var clientErr *aliErrors.ClientError
	if errors.As(err, &clientErr) {
		return &domain.APIError{Kind: domain.FaultNetwork, Op: op, Code: clientErr.ErrorCode(), Err: err}
	}

	return &domain.APIError{Kind: domain.FaultNetwork, Op: op, Err: err}
}

func isThrottling(code string) bool {
	return strings.Contains(code, "Throttling")
}

func dataFault(op, code string, err error) *domain.APIError {
	return &domain.APIError{Kind: domain.FaultData, Op: op, Code: code, Err: err}
}
