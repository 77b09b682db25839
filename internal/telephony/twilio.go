// Package telephony adapts the provider's calling REST API to the narrow
// contract the call flow depends on.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Dialer places and cancels outbound call legs
type Dialer interface {
	PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error)
	CancelCall(ctx context.Context, handle string) error
}

// Messenger sends short text messages
type Messenger interface {
	SendMessage(ctx context.Context, to, from, body string) error
}

// TwilioClient implements Dialer and Messenger over the Twilio REST API.
// Request duration is bounded by the client timeout.
type TwilioClient struct {
	rest   *twilio.RestClient
	logger *zap.Logger
}

// NewTwilioClient creates a new Twilio REST client
func NewTwilioClient(accountSID, authToken string, timeout time.Duration, logger *zap.Logger) *TwilioClient {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout > 0 {
		rest.SetTimeout(timeout)
	}

	return &TwilioClient{
		rest:   rest,
		logger: logger.Named("twilio"),
	}
}

// PlaceCall starts an outbound call whose answer webhook is callbackURL
func (c *TwilioClient) PlaceCall(ctx context.Context, to, from, callbackURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(callbackURL)
	params.SetMethod("POST")

	call, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call to %s: %w", to, err)
	}
	if call.Sid == nil || *call.Sid == "" {
		return "", fmt.Errorf("create call to %s: provider returned no call sid", to)
	}

	c.logger.Debug("call placed", zap.String("to", to), zap.String("call_sid", *call.Sid))
	return *call.Sid, nil
}

// CancelCall ends a ringing or in-progress call
func (c *TwilioClient) CancelCall(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")

	if _, err := c.rest.Api.UpdateCall(handle, params); err != nil {
		return fmt.Errorf("cancel call %s: %w", handle, err)
	}
	return nil
}

// SendMessage sends an SMS
func (c *TwilioClient) SendMessage(ctx context.Context, to, from, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	if _, err := c.rest.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("send message to %s: %w", to, err)
	}
	return nil
}

// ErrorCode extracts the provider error code from err, or 0.
func ErrorCode(err error) int {
	var restErr *client.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Code
	}
	return 0
}
