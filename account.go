package luco

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// GetInfo returns API version, tenant details, permissions and the current rate limit.
func (c *Client) GetInfo(ctx context.Context) (*Response[APIInfo], error) {
	return call[APIInfo](ctx, c, http.MethodGet, "/info", nil)
}

// GetTemplates lists the email templates available to the API key.
func (c *Client) GetTemplates(ctx context.Context, params TemplateListParams) (*Response[TemplatesResult], error) {
	endpoint := "/templates?" + params.PageParams.query()
	if search := strings.TrimSpace(params.Search); search != "" {
		endpoint += "&search=" + url.QueryEscape(search)
	}
	return call[TemplatesResult](ctx, c, http.MethodGet, endpoint, nil)
}

// GetIdentities lists verified sender identities.
func (c *Client) GetIdentities(ctx context.Context, params PageParams) (*Response[IdentitiesResult], error) {
	return call[IdentitiesResult](ctx, c, http.MethodGet, "/identities?"+params.query(), nil)
}

// GetAnalytics returns delivery analytics, optionally bounded by start and end dates.
func (c *Client) GetAnalytics(ctx context.Context, params AnalyticsParams) (*Response[AnalyticsResult], error) {
	var query []string
	if params.StartDate != "" {
		query = append(query, "startDate="+url.QueryEscape(params.StartDate))
	}
	if params.EndDate != "" {
		query = append(query, "endDate="+url.QueryEscape(params.EndDate))
	}

	endpoint := "/analytics"
	if len(query) > 0 {
		endpoint += "?" + strings.Join(query, "&")
	}
	return call[AnalyticsResult](ctx, c, http.MethodGet, endpoint, nil)
}

// query renders "page=N&limit=M" in that order.
func (p PageParams) query() string {
	page, limit := p.Page, p.Limit
	if page <= 0 {
		page = defaultPage
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	return "page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
}
