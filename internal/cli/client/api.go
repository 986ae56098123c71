package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zfogg/daybook/internal/cli/credentials"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/models"
)

// Login signs in and stores the returned tokens
func (cl *Client) Login(ctx context.Context, email, password, otpCode string) (*AuthResult, error) {
	var result AuthResult
	err := cl.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   dto.LoginRequest{Email: email, Password: password, OTPCode: otpCode},
	}, &result, nil)
	if err != nil {
		return nil, err
	}
	if err := cl.tokens.Save(toCredentials(&result)); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout revokes the stored refresh token and forgets the credentials.
// Credentials are removed even when the server call fails.
func (cl *Client) Logout(ctx context.Context) (*credentials.Credentials, error) {
	creds, err := cl.tokens.Load()
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, ErrNotLoggedIn
	}

	var callErr error
	if creds.RefreshToken != "" {
		callErr = cl.do(ctx, call{
			method: http.MethodPost,
			path:   "/auth/logout",
			body:   dto.RefreshRequest{RefreshToken: creds.RefreshToken},
		}, nil, nil)
	}
	if err := cl.tokens.Delete(); err != nil {
		return creds, err
	}
	return creds, callErr
}

// Me returns the signed-in account
func (cl *Client) Me(ctx context.Context) (*dto.UserResponse, error) {
	var user dto.UserResponse
	if err := cl.do(ctx, call{method: http.MethodGet, path: "/auth/me", auth: true}, &user, nil); err != nil {
		return nil, err
	}
	return &user, nil
}

// Dashboard returns the day view; an empty date means today for the account
func (cl *Client) Dashboard(ctx context.Context, date string) (*Dashboard, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var d Dashboard
	if err := cl.do(ctx, call{method: http.MethodGet, path: "/dashboard", query: q, auth: true}, &d, nil); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListItems lists progress items
func (cl *Client) ListItems(ctx context.Context, f ItemFilter) ([]models.ProgressItem, *PageMeta, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Quadrant != "" {
		q.Set("quadrant", f.Quadrant)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}

	var (
		items []models.ProgressItem
		meta  PageMeta
	)
	if err := cl.do(ctx, call{method: http.MethodGet, path: "/progress-items", query: q, auth: true}, &items, &meta); err != nil {
		return nil, nil, err
	}
	return items, &meta, nil
}

// CreateItem adds a progress item
func (cl *Client) CreateItem(ctx context.Context, req dto.CreateProgressItemRequest) (*models.ProgressItem, error) {
	var item models.ProgressItem
	if err := cl.do(ctx, call{method: http.MethodPost, path: "/progress-items", body: req, auth: true}, &item, nil); err != nil {
		return nil, err
	}
	return &item, nil
}

// CompleteItem marks a progress item done
func (cl *Client) CompleteItem(ctx context.Context, id string) (*models.ProgressItem, error) {
	var item models.ProgressItem
	path := "/progress-items/" + url.PathEscape(id) + "/complete"
	if err := cl.do(ctx, call{method: http.MethodPost, path: path, auth: true}, &item, nil); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes a progress item
func (cl *Client) DeleteItem(ctx context.Context, id string) error {
	return cl.do(ctx, call{method: http.MethodDelete, path: "/progress-items/" + url.PathEscape(id), auth: true}, nil, nil)
}

// ListCommitments lists commitments; archived nil lists all
func (cl *Client) ListCommitments(ctx context.Context, archived *bool) ([]models.Commitment, error) {
	q := url.Values{}
	if archived != nil {
		q.Set("archived", strconv.FormatBool(*archived))
	}
	var list []models.Commitment
	if err := cl.do(ctx, call{method: http.MethodGet, path: "/commitments", query: q, auth: true}, &list, nil); err != nil {
		return nil, err
	}
	return list, nil
}

// CheckIn records a commitment as kept on date
func (cl *Client) CheckIn(ctx context.Context, commitmentID, date, note string) (*models.CommitmentLog, error) {
	var log models.CommitmentLog
	path := "/commitments/" + url.PathEscape(commitmentID) + "/logs"
	body := dto.CheckInRequest{Date: date, Note: note}
	if err := cl.do(ctx, call{method: http.MethodPost, path: path, body: body, auth: true}, &log, nil); err != nil {
		return nil, err
	}
	return &log, nil
}

// Timeline lists events of one day, or overlapping [from, to) when both are set.
// from and to may be dates or RFC3339 instants.
func (cl *Client) Timeline(ctx context.Context, date, from, to string) ([]models.TimelineEvent, error) {
	q := url.Values{}
	if from != "" || to != "" {
		q.Set("from", from)
		q.Set("to", to)
	} else if date != "" {
		q.Set("date", date)
	}
	var events []models.TimelineEvent
	if err := cl.do(ctx, call{method: http.MethodGet, path: "/timeline", query: q, auth: true}, &events, nil); err != nil {
		return nil, err
	}
	return events, nil
}
