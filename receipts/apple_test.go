package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripperFunc lets a test stand in for Apple's verification endpoint.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body interface{}) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestAppleVerify(t *testing.T) {
	var gotBody map[string]interface{}
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		return jsonResponse(http.StatusOK, map[string]interface{}{
			"status":      0,
			"environment": "Production",
		}), nil
	})}

	v := NewAppleValidator(
		WithHTTPClient(client),
		WithSharedSecret("secret"),
		WithExcludeOldTransactions(),
	)

	resp, err := v.Verify(context.Background(), "base64receipt")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 0, resp.Status)

	assert.Equal(t, "base64receipt", gotBody["receipt-data"])
	assert.Equal(t, "secret", gotBody["password"])
	assert.Equal(t, true, gotBody["exclude-old-transactions"])
}

func TestAppleVerifyRejectedStatus(t *testing.T) {
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		// 21002: malformed receipt data
		return jsonResponse(http.StatusOK, map[string]interface{}{"status": 21002}), nil
	})}

	v := NewAppleValidator(WithHTTPClient(client))

	resp, err := v.Verify(context.Background(), "garbage")
	require.Error(t, err)
	// The raw response stays inspectable alongside the error
	require.NotNil(t, resp)
	assert.Equal(t, 21002, resp.Status)
}

func TestAppleVerifySandboxRetry(t *testing.T) {
	var hosts []string
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		hosts = append(hosts, req.URL.Host)
		if req.URL.Host == "sandbox.itunes.apple.com" {
			return jsonResponse(http.StatusOK, map[string]interface{}{
				"status":      0,
				"environment": "Sandbox",
			}), nil
		}
		// 21007: sandbox receipt sent to production
		return jsonResponse(http.StatusOK, map[string]interface{}{"status": 21007}), nil
	})}

	v := NewAppleValidator(WithHTTPClient(client))

	resp, err := v.Verify(context.Background(), "sandboxreceipt")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	require.Len(t, hosts, 2)
	assert.Equal(t, "buy.itunes.apple.com", hosts[0])
	assert.Equal(t, "sandbox.itunes.apple.com", hosts[1])
}

func TestAppleVerifyEmptyReceipt(t *testing.T) {
	v := NewAppleValidator()
	_, err := v.Verify(context.Background(), "")
	assert.Error(t, err)
}
