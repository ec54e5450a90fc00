// Package aliyun implements the cloud provider client against the
// Aliyun OpenAPI: CDT for traffic usage and ECS for instance state.
package aliyun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk"
	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/ecs"
	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
	"github.com/smallbiznis/trafficwarden/internal/monitor/domain"
	"github.com/smallbiznis/trafficwarden/internal/observability/metrics"
)

const (
	// CDT is only served out of a handful of endpoints; the product
	// accounts traffic account-wide, so the query region is fixed.
	cdtRegion  = "cn-hongkong"
	cdtDomain  = "cdt.aliyuncs.com"
	cdtVersion = "2021-08-13"

	connectTimeout = 5 * time.Second
	readTimeout    = 10 * time.Second

	bytesPerGB = 1024 * 1024 * 1024
)

// Client talks to the Aliyun APIs with per-call credentials. It is
// stateless apart from its retry tuning, so one instance serves every
// account.
type Client struct {
	log          *zap.Logger
	retryInitial time.Duration
	maxAttempts  int
}

var _ domain.Provider = (*Client)(nil)

func NewClient(log *zap.Logger) *Client {
	return &Client{
		log:          log.Named("aliyun"),
		retryInitial: time.Second,
		maxAttempts:  3,
	}
}

type cdtTrafficResponse struct {
	TrafficDetails []struct {
		Traffic float64 `json:"Traffic"`
	} `json:"TrafficDetails"`
}

// TrafficUsage sums CDT internet traffic across all regions and
// returns it in GB.
func (c *Client) TrafficUsage(ctx context.Context, account accountdomain.Account) (float64, error) {
	const op = "ListCdtInternetTraffic"

	var body []byte
	err := c.withRetry(ctx, op, func() error {
		client, err := sdk.NewClientWithAccessKey(cdtRegion, account.AccessKeyID, account.AccessKeySecret)
		if err != nil {
			return err
		}
		client.SetConnectTimeout(connectTimeout)
		client.SetReadTimeout(readTimeout)

		request := requests.NewCommonRequest()
		request.Method = requests.POST
		request.Scheme = requests.HTTPS
		request.Domain = cdtDomain
		request.Version = cdtVersion
		request.ApiName = op
		request.TransToAcsRequest()

		response, err := client.ProcessCommonRequest(request)
		if err != nil {
			return err
		}
		body = response.GetHttpContentBytes()
		return nil
	})
	if err != nil {
		metrics.Monitor().IncProviderCall(op, err)
		return domain.TrafficUnavailable, err
	}

	var payload cdtTrafficResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.Monitor().IncProviderCall(op, err)
		return domain.TrafficUnavailable, dataFault(op, "MalformedResponse", err)
	}
	if payload.TrafficDetails == nil {
		fault := dataFault(op, "MissingTrafficDetails", fmt.Errorf("response has no TrafficDetails"))
		metrics.Monitor().IncProviderCall(op, fault)
		return domain.TrafficUnavailable, fault
	}

	var total float64
	for _, detail := range payload.TrafficDetails {
		total += detail.Traffic
	}
	metrics.Monitor().IncProviderCall(op, nil)
	return total / bytesPerGB, nil
}

// InstanceStatus reads the power state of the account's instance. An
// empty status list is not an error; it resolves to StatusUnknown.
func (c *Client) InstanceStatus(ctx context.Context, account accountdomain.Account) (domain.Status, error) {
	const op = "DescribeInstanceStatus"

	var raw string
	err := c.withRetry(ctx, op, func() error {
		client, err := c.ecsClient(account)
		if err != nil {
			return err
		}
		request := ecs.CreateDescribeInstanceStatusRequest()
		request.RegionId = account.RegionID
		if account.InstanceID != "" {
			request.InstanceId = &[]string{account.InstanceID}
		}
		response, err := client.DescribeInstanceStatus(request)
		if err != nil {
			return err
		}
		raw = ""
		if len(response.InstanceStatuses.InstanceStatus) > 0 {
			raw = response.InstanceStatuses.InstanceStatus[0].Status
		}
		return nil
	})
	if err != nil {
		metrics.Monitor().IncProviderCall(op, err)
		return domain.StatusUnknown, err
	}
	metrics.Monitor().IncProviderCall(op, nil)
	return domain.ParseStatus(raw), nil
}

// ControlInstance starts or stops the account's instance. Stop honors
// the configured stopped mode so a stopped instance can keep or drop
// its billing.
func (c *Client) ControlInstance(ctx context.Context, account accountdomain.Account, action domain.InstanceAction, shutdownMode string) error {
	op := "StartInstance"
	if action == domain.ActionStop {
		op = "StopInstance"
	}
	if account.InstanceID == "" {
		return &domain.APIError{
			Kind: domain.FaultClient,
			Op:   op,
			Code: "MissingInstanceId",
			Err:  fmt.Errorf("account %s has no instance id", account.MaskedID()),
		}
	}

	err := c.withRetry(ctx, op, func() error {
		client, err := c.ecsClient(account)
		if err != nil {
			return err
		}
		if action == domain.ActionStart {
			request := ecs.CreateStartInstanceRequest()
			request.InstanceId = account.InstanceID
			_, err = client.StartInstance(request)
			return err
		}
		request := ecs.CreateStopInstanceRequest()
		request.InstanceId = account.InstanceID
		request.StoppedMode = shutdownMode
		_, err = client.StopInstance(request)
		return err
	})
	if err != nil {
		metrics.Monitor().IncProviderCall(op, err)
		return err
	}
	metrics.Monitor().IncProviderCall(op, nil)
	c.log.Info("instance command issued",
		zap.String("account", account.MaskedID()),
		zap.String("action", string(action)),
	)
	return nil
}

func (c *Client) ecsClient(account accountdomain.Account) (*ecs.Client, error) {
	client, err := ecs.NewClientWithAccessKey(account.RegionID, account.AccessKeyID, account.AccessKeySecret)
	if err != nil {
		return nil, err
	}
	client.SetConnectTimeout(connectTimeout)
	client.SetReadTimeout(readTimeout)
	return client, nil
}
