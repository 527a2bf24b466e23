package iaas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	requestDeadline = 30 * time.Second
	connectDeadline = 10 * time.Second
	idleConnTTL     = 90 * time.Second

	doBaseURL = "https://api.digitalocean.com/v2"
)

// DigitalOceanClient implements Provider against DigitalOcean's
// Droplets API. Grounded on
// original_source/src/infrastructure/digital_ocean.rs: same timeout
// budgets, same status-code handling (429 -> RateLimited, 404-on-destroy
// -> success), same request/response envelope shapes.
type DigitalOceanClient struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

// NewDigitalOceanClient validates the credential shape at construction;
// invalid credentials surface as InvalidConfigError here, not at first
// use.
func NewDigitalOceanClient(apiToken string) (*DigitalOceanClient, error) {
	if apiToken == "" {
		return nil, &InvalidConfigError{Detail: "iaas_token must not be empty"}
	}

	dialer := &net.Dialer{Timeout: connectDeadline}
	transport := &http.Transport{
		IdleConnTimeout: idleConnTTL,
		DialContext:     dialer.DialContext,
	}

	return &DigitalOceanClient{
		httpClient: &http.Client{
			Timeout:   requestDeadline,
			Transport: transport,
		},
		token:   apiToken,
		baseURL: doBaseURL,
	}, nil
}

type dropletCreateRequest struct {
	Name     string   `json:"name"`
	Region   string   `json:"region"`
	Size     string   `json:"size"`
	Image    string   `json:"image"`
	UserData string   `json:"user_data"`
	Tags     []string `json:"tags,omitempty"`
}

type dropletEnvelope struct {
	Droplet dropletResponse `json:"droplet"`
}

type dropletResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Networks struct {
		V4 []struct {
			IPAddress string `json:"ip_address"`
			Type      string `json:"type"`
		} `json:"v4"`
	} `json:"networks"`
}

func (d dropletResponse) toVM() VM {
	vm := VM{ID: d.ID, Name: d.Name, Status: d.Status}
	for _, addr := range d.Networks.V4 {
		if addr.Type == "public" {
			vm.IPAddress = addr.IPAddress
			break
		}
	}
	return vm
}

func (c *DigitalOceanClient) CreateVM(ctx context.Context, req CreateRequest) (VM, error) {
	body, err := json.Marshal(dropletCreateRequest{
		Name:     req.Name,
		Region:   req.Region,
		Size:     req.Size,
		Image:    req.Image,
		UserData: req.UserData,
		Tags:     req.Tags,
	})
	if err != nil {
		return VM{}, &FatalError{Cause: err}
	}

	var vm VM
	err = withRetry(ctx, "create_vm", func(ctx context.Context, attempt int) (attemptResult, error) {
		resp, reqErr := c.do(ctx, http.MethodPost, "/droplets", bytes.NewReader(body))
		if reqErr != nil {
			return attemptResult{networkErr: reqErr}, reqErr
		}
		defer resp.Body.Close()

		result := attemptResult{status: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			result.retryAfterSeconds = parseRetryAfter(resp.Header.Get("Retry-After"))
			return result, &RateLimitedError{RetryAfterSeconds: result.retryAfterSeconds}
		}
		if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
			return result, c.fatalFromResponse(resp)
		}

		var envelope dropletEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr != nil {
			return result, &FatalError{Cause: decodeErr}
		}
		vm = envelope.Droplet.toVM()
		return result, nil
	})
	return vm, err
}

func (c *DigitalOceanClient) GetVM(ctx context.Context, id int64) (VM, error) {
	var vm VM
	err := withRetry(ctx, "get_vm", func(ctx context.Context, attempt int) (attemptResult, error) {
		resp, reqErr := c.do(ctx, http.MethodGet, fmt.Sprintf("/droplets/%d", id), nil)
		if reqErr != nil {
			return attemptResult{networkErr: reqErr}, reqErr
		}
		defer resp.Body.Close()

		result := attemptResult{status: resp.StatusCode}
		if resp.StatusCode == http.StatusNotFound {
			return result, &FatalError{Cause: ErrNotFound}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			result.retryAfterSeconds = parseRetryAfter(resp.Header.Get("Retry-After"))
			return result, &RateLimitedError{RetryAfterSeconds: result.retryAfterSeconds}
		}
		if resp.StatusCode != http.StatusOK {
			return result, c.fatalFromResponse(resp)
		}

		var envelope dropletEnvelope
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr != nil {
			return result, &FatalError{Cause: decodeErr}
		}
		vm = envelope.Droplet.toVM()
		return result, nil
	})
	return vm, err
}

// DestroyVM treats 404 as success: the resource is already gone.
func (c *DigitalOceanClient) DestroyVM(ctx context.Context, id int64) error {
	return withRetry(ctx, "destroy_vm", func(ctx context.Context, attempt int) (attemptResult, error) {
		resp, reqErr := c.do(ctx, http.MethodDelete, fmt.Sprintf("/droplets/%d", id), nil)
		if reqErr != nil {
			return attemptResult{networkErr: reqErr}, reqErr
		}
		defer resp.Body.Close()

		result := attemptResult{status: resp.StatusCode}
		if resp.StatusCode == http.StatusNotFound {
			return result, nil
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			result.retryAfterSeconds = parseRetryAfter(resp.Header.Get("Retry-After"))
			return result, &RateLimitedError{RetryAfterSeconds: result.retryAfterSeconds}
		}
		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusAccepted {
			return result, c.fatalFromResponse(resp)
		}
		return result, nil
	})
}

func (c *DigitalOceanClient) PowerOff(ctx context.Context, id int64) error {
	return c.powerAction(ctx, id, "power_off")
}

func (c *DigitalOceanClient) PowerOn(ctx context.Context, id int64) error {
	return c.powerAction(ctx, id, "power_on")
}

func (c *DigitalOceanClient) powerAction(ctx context.Context, id int64, action string) error {
	body, _ := json.Marshal(map[string]string{"type": action})
	return withRetry(ctx, action, func(ctx context.Context, attempt int) (attemptResult, error) {
		resp, reqErr := c.do(ctx, http.MethodPost, fmt.Sprintf("/droplets/%d/actions", id), bytes.NewReader(body))
		if reqErr != nil {
			return attemptResult{networkErr: reqErr}, reqErr
		}
		defer resp.Body.Close()

		result := attemptResult{status: resp.StatusCode}
		if resp.StatusCode == http.StatusNotFound {
			return result, &FatalError{Cause: ErrNotFound}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			result.retryAfterSeconds = parseRetryAfter(resp.Header.Get("Retry-After"))
			return result, &RateLimitedError{RetryAfterSeconds: result.retryAfterSeconds}
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
			return result, c.fatalFromResponse(resp)
		}
		return result, nil
	})
}

func (c *DigitalOceanClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func (c *DigitalOceanClient) fatalFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &FatalError{Cause: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))}
}

func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
