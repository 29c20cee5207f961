package client

import (
	"context"
	"net/url"
	"strconv"
)

type AlertsClient struct {
	client *Client
}

func alertPath(id string, suffix ...string) string {
	p := "/api/v1/alerts/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func (a *AlertsClient) Create(ctx context.Context, req CreateAlertRequest) (*AlertView, error) {
	var v AlertView
	if err := a.client.post(ctx, "/api/v1/alerts", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *AlertsClient) List(ctx context.Context) (*AlertList, error) {
	var l AlertList
	if err := a.client.get(ctx, "/api/v1/alerts", &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *AlertsClient) Get(ctx context.Context, id string) (*AlertView, error) {
	var v AlertView
	if err := a.client.get(ctx, alertPath(id), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *AlertsClient) Update(ctx context.Context, id string, req UpdateAlertRequest) (*AlertView, error) {
	var v AlertView
	if err := a.client.patch(ctx, alertPath(id), req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *AlertsClient) Delete(ctx context.Context, id string) error {
	return a.client.delete(ctx, alertPath(id))
}

func (a *AlertsClient) Pause(ctx context.Context, id string) (*AlertView, error) {
	var v AlertView
	if err := a.client.post(ctx, alertPath(id, "pause"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (a *AlertsClient) Resume(ctx context.Context, id string) (*AlertView, error) {
	var v AlertView
	if err := a.client.post(ctx, alertPath(id, "resume"), nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Notifications lists one alert's notifications, newest first. A zero limit
// uses the server default.
func (a *AlertsClient) Notifications(ctx context.Context, id string, limit int) (*NotificationList, error) {
	p := alertPath(id, "notifications")
	if limit > 0 {
		p += "?limit=" + strconv.Itoa(limit)
	}
	var l NotificationList
	if err := a.client.get(ctx, p, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// Inbox lists notifications across the owner's alerts.
func (a *AlertsClient) Inbox(ctx context.Context, unreadOnly bool, limit int) (*NotificationList, error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	p := "/api/v1/notifications"
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	var l NotificationList
	if err := a.client.get(ctx, p, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (a *AlertsClient) MarkRead(ctx context.Context, notificationID string) error {
	return a.client.post(ctx, "/api/v1/notifications/"+url.PathEscape(notificationID)+"/read", nil, nil)
}

// Evaluate runs one scheduler pass on the server.
func (a *AlertsClient) Evaluate(ctx context.Context) (*EvaluationReport, error) {
	var r EvaluationReport
	if err := a.client.post(ctx, "/api/v1/alerts/evaluate", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
