package luco

import (
	"time"
)

// EmailContent is the literal body of an email. At least one of HTML and Text should be set.
type EmailContent struct {
	HTML string `json:"html,omitempty"`
	Text string `json:"text,omitempty"`
}

// TemplateRef selects a stored template and the values for its placeholders.
type TemplateRef struct {
	Variables map[string]any `json:"variables,omitempty"`
	ID        string         `json:"id"`
}

// Attachment is a file sent along with an email. Content is base64 encoded.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// SendEmailRequest is the payload of POST /email/send.
// Content or Template must be set.
type SendEmailRequest struct {
	To            string        `json:"to" validate:"notblank"`
	Subject       string        `json:"subject" validate:"notblank"`
	Content       *EmailContent `json:"content,omitempty" validate:"required_without=Template"`
	Template      *TemplateRef  `json:"template,omitempty" validate:"required_without=Content"`
	ReplyTo       string        `json:"replyTo,omitempty"`
	ApplicationID string        `json:"applicationId,omitempty"`
	Attachments   []Attachment  `json:"attachments,omitempty"`
}

// BulkRecipient is one addressee of a bulk send, with per-recipient template variables.
type BulkRecipient struct {
	Variables map[string]any `json:"variables,omitempty"`
	Email     string         `json:"email" validate:"notblank"`
}

// SendBulkEmailRequest is the payload of POST /email/send-bulk.
type SendBulkEmailRequest struct {
	Recipients    []BulkRecipient `json:"recipients" validate:"required,min=1,dive"`
	Subject       string          `json:"subject" validate:"notblank"`
	Content       *EmailContent   `json:"content,omitempty" validate:"required_without=Template"`
	Template      *TemplateRef    `json:"template,omitempty" validate:"required_without=Content"`
	ReplyTo       string          `json:"replyTo,omitempty"`
	ApplicationID string          `json:"applicationId,omitempty"`
	Attachments   []Attachment    `json:"attachments,omitempty"`
}

// EmailResult is returned by SendEmail. Immediate sends fill Results and Summary;
// scheduled sends fill CampaignID, ScheduledAt and RecipientCount.
type EmailResult struct {
	ScheduledAt    *time.Time        `json:"scheduledAt,omitempty"`
	CampaignID     string            `json:"campaignId,omitempty"`
	Results        []RecipientResult `json:"results,omitempty"`
	Summary        SendSummary       `json:"summary"`
	RecipientCount int               `json:"recipientCount,omitempty"`
}

// RecipientResult is the delivery outcome for one recipient.
type RecipientResult struct {
	Email      string `json:"email"`
	MessageID  string `json:"messageId,omitempty"`
	EmailLogID string `json:"emailLogId,omitempty"`
	Error      string `json:"error,omitempty"`
	Success    bool   `json:"success"`
}

// SendSummary counts recipient outcomes.
type SendSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// BulkEmailResult is returned by SendBulkEmails once the batch is queued.
type BulkEmailResult struct {
	CampaignID string `json:"campaignId"`
	EmailCount int    `json:"emailCount"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// Template is a stored email template.
type Template struct {
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Subject     string    `json:"subject"`
	Description string    `json:"description,omitempty"`
	HTMLContent string    `json:"htmlContent,omitempty"`
	TextContent string    `json:"textContent,omitempty"`
	Variables   []string  `json:"variables,omitempty"`
	IsActive    bool      `json:"isActive"`
}

// ApplicationRef names the application a listing belongs to.
type ApplicationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TemplatesResult is returned by GetTemplates.
type TemplatesResult struct {
	Application *ApplicationRef `json:"application,omitempty"`
	Pagination  *Pagination     `json:"pagination,omitempty"`
	Templates   []Template      `json:"templates"`
}

// Identity is a sender address or domain.
type Identity struct {
	CreatedAt     time.Time  `json:"createdAt"`
	VerifiedAt    *time.Time `json:"verifiedAt,omitempty"`
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Value         string     `json:"value"`
	Status        string     `json:"status"`
	ApplicationID string     `json:"applicationId,omitempty"`
}

// IdentitiesResult is returned by GetIdentities.
type IdentitiesResult struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	Identities []Identity  `json:"identities"`
}

// AnalyticsResult is returned by GetAnalytics.
type AnalyticsResult struct {
	Filters       map[string]any   `json:"filters,omitempty"`
	Summary       AnalyticsSummary `json:"summary"`
	TimeSeries    []map[string]any `json:"timeSeries,omitempty"`
	TopTemplates  []map[string]any `json:"topTemplates,omitempty"`
	IssueAnalysis IssueAnalysis    `json:"issueAnalysis"`
}

// AnalyticsSummary totals emails by delivery status.
type AnalyticsSummary struct {
	ByStatus    map[string]int `json:"byStatus"`
	TotalEmails int            `json:"totalEmails"`
}

// IssueAnalysis groups bounces and complaints by reason.
type IssueAnalysis struct {
	BounceReasons    []ReasonCount `json:"bounceReasons,omitempty"`
	ComplaintReasons []ReasonCount `json:"complaintReasons,omitempty"`
}

// ReasonCount is a count of events sharing a reason.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// APIInfo is returned by GetInfo.
type APIInfo struct {
	APIVersion  string        `json:"apiVersion"`
	Tenant      TenantInfo    `json:"tenant"`
	Permissions []string      `json:"permissions"`
	RateLimit   RateLimitInfo `json:"rateLimit"`
}

// TenantInfo identifies the account that owns the API key.
type TenantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Plan string `json:"plan"`
}

// RateLimitInfo is the API key's hourly request budget.
type RateLimitInfo struct {
	ResetAt   time.Time `json:"resetAt"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
}

// PageParams selects a page of a listing. Zero values mean page 1 and 10 items.
type PageParams struct {
	Page  int
	Limit int
}

// TemplateListParams filters GetTemplates.
type TemplateListParams struct {
	// Search is trimmed and omitted when blank.
	Search string
	PageParams
}

// AnalyticsParams bounds GetAnalytics. Dates are ISO 8601 strings; empty values are omitted.
type AnalyticsParams struct {
	StartDate string
	EndDate   string
}
