// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mattermost/meshcall/service/room"
)

const (
	httpRequestTimeout           = 10 * time.Second
	httpResponseBodyMaxSizeBytes = 1024 * 1024 // 1MB
)

var ErrInvalidRoomID = errors.New("invalid room id")

// APIClient talks to the REST side of the meshcall service.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAPIClient(siteURL string) (*APIClient, error) {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if _, err := parseSiteURL(siteURL); err != nil {
		return nil, err
	}

	return &APIClient{
		baseURL: siteURL + roomsAPIPath,
		httpClient: &http.Client{
			Timeout: httpRequestTimeout,
		},
	}, nil
}

func (c *APIClient) do(ctx context.Context, method, reqURL string, expectedStatus int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, httpRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body := &io.LimitedReader{
		R: res.Body,
		N: httpResponseBodyMaxSizeBytes,
	}

	if res.StatusCode != expectedStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if res.StatusCode == http.StatusBadRequest {
			if err := json.NewDecoder(body).Decode(&apiErr); err == nil && apiErr.Error != "" {
				return fmt.Errorf("%w: %s", ErrInvalidRoomID, apiErr.Error)
			}
		}
		return fmt.Errorf("unexpected response status code %d", res.StatusCode)
	}

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// CreateRoom reserves a new room and returns its code.
func (c *APIClient) CreateRoom(ctx context.Context) (string, error) {
	var res struct {
		RoomID string `json:"roomId"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL, http.StatusCreated, &res); err != nil {
		return "", err
	}
	if res.RoomID == "" {
		return "", fmt.Errorf("unexpected empty room id")
	}
	return res.RoomID, nil
}

// DescribeRoom returns the current state of the room matching code. Unknown
// rooms are reported with Exists set to false.
func (c *APIClient) DescribeRoom(ctx context.Context, code string) (room.Description, error) {
	var desc room.Description
	if strings.TrimSpace(code) == "" {
		return desc, ErrInvalidRoomID
	}
	err := c.do(ctx, http.MethodGet, c.baseURL+"/"+url.PathEscape(code), http.StatusOK, &desc)
	return desc, err
}
