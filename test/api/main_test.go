//go:build integration

package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// These tests run against a live server with a migrated database. The
// account given by CLINIC_TEST_EMAIL/CLINIC_TEST_PASSWORD must exist, e.g.
//
//	clinicctl user create --email staff@campus.edu --name Staff --password ... --role staff
var (
	baseURL   = envOr("CLINIC_TEST_BASE_URL", "http://localhost:8080/api/v1")
	email     = envOr("CLINIC_TEST_EMAIL", "staff@campus.edu")
	password  = envOr("CLINIC_TEST_PASSWORD", "staff12345")
	authToken string
	client    = &http.Client{Timeout: 10 * time.Second}
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// TestResponse is the decoded response envelope.
type TestResponse struct {
	Code    int
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []string        `json:"errors"`
}

func (r TestResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r TestResponse) Decode(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}

func checkAPIServer() error {
	resp, err := client.Get(baseURL + "/health/live")
	if err != nil {
		return fmt.Errorf("API server not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API server not live: HTTP %d", resp.StatusCode)
	}
	return nil
}

func TestMain(m *testing.M) {
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		if err := checkAPIServer(); err != nil {
			if i == maxRetries-1 {
				fmt.Printf("Error: %v\nMake sure the API server is running at %s\n", err, baseURL)
				os.Exit(1)
			}
			fmt.Printf("Waiting for API server (attempt %d/%d)...\n", i+1, maxRetries)
			time.Sleep(2 * time.Second)
			continue
		}
		break
	}

	loginResp := makeRequest(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if !loginResp.IsSuccess() || loginResp.Decode(&token) != nil || token.AccessToken == "" {
		fmt.Printf("Failed to login as %s: HTTP %d %s\n", email, loginResp.Code, loginResp.Message)
		os.Exit(1)
	}
	authToken = token.AccessToken

	os.Exit(m.Run())
}

func makeRequest(method, path string, body interface{}, token string) TestResponse {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return TestResponse{Status: "error", Message: err.Error()}
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+path, reqBody)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.Do(req)
	if err != nil {
		return TestResponse{Status: "error", Message: err.Error()}
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return TestResponse{Code: response.StatusCode, Status: "error", Message: err.Error()}
	}

	resp := TestResponse{Code: response.StatusCode}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		resp.Status = "error"
		resp.Message = fmt.Sprintf("failed to parse response: %v: %s", err, respBody)
	}
	return resp
}

// nextOpenDate returns a weekday at least a week out so the test never races
// the past-date rule.
func nextOpenDate(offsetWeeks int) string {
	d := time.Now().AddDate(0, 0, 7*(offsetWeeks+1))
	for d.Weekday() != time.Tuesday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}
