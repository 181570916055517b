package luco

import (
	"context"
	"net/http"
)

// SendEmail sends a single email.
// The request needs a recipient, a subject and either content or a template;
// otherwise a *ValidationError is returned and nothing is sent.
func (c *Client) SendEmail(ctx context.Context, req *SendEmailRequest) (*Response[EmailResult], error) {
	if req == nil {
		return nil, &ValidationError{Message: "email request is required"}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return call[EmailResult](ctx, c, http.MethodPost, "/email/send", req)
}

// SendBulkEmails queues one email per recipient.
// Recipients must be non-empty and each needs an email address.
func (c *Client) SendBulkEmails(ctx context.Context, req *SendBulkEmailRequest) (*Response[BulkEmailResult], error) {
	if req == nil {
		return nil, &ValidationError{Message: "bulk email request is required"}
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return call[BulkEmailResult](ctx, c, http.MethodPost, "/email/send-bulk", req)
}
