package cmd

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JakeFAU/coursebot/internal/scheduler"
)

// apiClient talks to a running `coursebot serve`.
type apiClient struct {
	http *resty.Client
}

type apiError struct {
	Error string `json:"error"`
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	if apiKey != "" {
		c.SetHeader("X-API-Key", apiKey)
	}
	return &apiClient{http: c}
}

func (c *apiClient) check(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("coursebot server: %w", err)
	}
	if res.IsError() {
		if e, ok := res.Error().(*apiError); ok && e.Error != "" {
			return fmt.Errorf("coursebot server: %s (status %d)", e.Error, res.StatusCode())
		}
		return fmt.Errorf("coursebot server: status %d", res.StatusCode())
	}
	return nil
}

func (c *apiClient) schedulerStatus(ctx context.Context) (scheduler.Status, error) {
	var out scheduler.Status
	res, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/v1/scheduler")
	return out, c.check(res, err)
}

func (c *apiClient) addAutoEnroll(ctx context.Context, courseID string) (string, error) {
	var out struct {
		Job string `json:"job"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"course_id": courseID}).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/v1/scheduler/auto-enroll")
	return out.Job, c.check(res, err)
}

func (c *apiClient) removeJob(ctx context.Context, name string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetError(&apiError{}).
		Delete("/v1/scheduler/jobs/" + url.PathEscape(name))
	return c.check(res, err)
}
