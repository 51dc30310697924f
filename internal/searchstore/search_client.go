// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/xataio/mystream/internal/json"
)

// Client is the part of the elasticsearch and opensearch APIs the index
// store needs.
type Client interface {
	Count(ctx context.Context, index string) (int, error)
	CreateIndex(ctx context.Context, index string, body map[string]any) error
	GetDocument(ctx context.Context, index, id string) (*Document, error)
	IndexExists(ctx context.Context, index string) (bool, error)
	RefreshIndex(ctx context.Context, index string) error
	SendBulkRequest(ctx context.Context, items []BulkItem) ([]BulkItem, error)
	GetMapper() Mapper
}

// APIResponse is implemented by the responses of both engine clients.
type APIResponse interface {
	GetBody() io.ReadCloser
	GetStatusCode() int
	IsError() bool
}

// PerformFn sends a raw request through the engine client transport.
type PerformFn func(req *http.Request) (*http.Response, error)

func Ptr[T any](i T) *T { return &i }

// CreateReader returns a reader on the JSON representation of the given value.
func CreateReader(value any) (*bytes.Reader, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("unexpected marshaling error: %w", err)
	}
	return bytes.NewReader(b), nil
}

// ReadResponse consumes and closes the response body. It returns the error
// the response carries, or decodes the body into out when out is not nil.
func ReadResponse(res APIResponse, out any) error {
	body := res.GetBody()
	defer body.Close()

	if err := IsErrResponse(res); err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// SendBulk writes the items in a single bulk request and returns the ones
// that were not applied.
func SendBulk(ctx context.Context, perform PerformFn, items []BulkItem) ([]BulkItem, error) {
	buffer := new(bytes.Buffer)
	if err := EncodeBulkItems(buffer, items); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/_bulk", buffer)
	if err != nil {
		return nil, fmt.Errorf("new bulk request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-ndjson")

	resp, err := perform(req)
	if err != nil {
		return nil, fmt.Errorf("sending bulk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode > 299 {
		return nil, ExtractResponseError(resp.Body, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading bulk response: %w", err)
	}
	return VerifyResponse(b, items)
}

// VerifyResponse returns the items of the bulk request that were not applied.
// A delete of a document that does not exist is not a failure.
func VerifyResponse(bodyBytes []byte, items []BulkItem) (failed []BulkItem, err error) {
	var response BulkResponse
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return nil, fmt.Errorf("error unmarshaling response from search store: %w (%s)", err, bodyBytes)
	}

	if !response.Errors {
		return []BulkItem{}, nil
	}

	if len(response.Items) != len(items) {
		return nil, fmt.Errorf("bulk response has %d items, expected %d", len(response.Items), len(items))
	}

	failed = []BulkItem{}
	for i, respItem := range response.Items {
		switch {
		case items[i].Index != nil:
			if respItem.Index.Status > 299 {
				items[i].Status = respItem.Index.Status
				items[i].Error = respItem.Index.Error
				failed = append(failed, items[i])
			}
		case items[i].Delete != nil:
			if respItem.Delete.Status == http.StatusNotFound && len(respItem.Delete.Error) == 0 {
				continue
			}
			if respItem.Delete.Status > 299 {
				items[i].Status = respItem.Delete.Status
				items[i].Error = respItem.Delete.Error
				failed = append(failed, items[i])
			}
		}
	}

	return failed, nil
}
