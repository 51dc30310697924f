// SPDX-License-Identifier: Apache-2.0

package elasticsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/xataio/mystream/internal/searchstore"
)

type Client struct {
	client *elasticsearch.Client
}

var errNoAddress = errors.New("no elasticsearch address provided")

func NewClient(address string) (*Client, error) {
	if address == "" {
		return nil, errNoAddress
	}
	c, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{address},
		Transport: http.DefaultTransport,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{client: c}, nil
}

func (c *Client) GetMapper() searchstore.Mapper {
	return NewMapper()
}

func (c *Client) Count(ctx context.Context, index string) (int, error) {
	res, err := c.client.Count(
		c.client.Count.WithIndex(index),
		c.client.Count.WithContext(ctx))
	count := searchstore.CountResponse{}
	if err := read("count", res, err, &count); err != nil {
		return 0, err
	}
	return count.Count, nil
}

func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	reader, err := searchstore.CreateReader(body)
	if err != nil {
		return err
	}
	res, err := c.client.Indices.Create(index,
		c.client.Indices.Create.WithContext(ctx),
		c.client.Indices.Create.WithBody(reader))
	return read("create index", res, err, nil)
}

// GetDocument returns the document with the id on input. A missing document
// is returned with Found set to false.
func (c *Client) GetDocument(ctx context.Context, index, id string) (*searchstore.Document, error) {
	res, err := c.client.Get(index, id, c.client.Get.WithContext(ctx))
	if err == nil && res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return &searchstore.Document{Index: index, ID: id}, nil
	}
	doc := &searchstore.Document{}
	if err := read("get document", res, err, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.client.Indices.Exists([]string{index}, c.client.Indices.Exists.WithContext(ctx))
	if err == nil && res.StatusCode == http.StatusNotFound {
		res.Body.Close()
		return false, nil
	}
	if err := read("index exists", res, err, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) RefreshIndex(ctx context.Context, index string) error {
	res, err := c.client.Indices.Refresh(
		c.client.Indices.Refresh.WithIndex(index),
		c.client.Indices.Refresh.WithContext(ctx))
	return read("refresh index", res, err, nil)
}

// SendBulkRequest applies the index and delete items in a single call. It
// returns the items that were not applied.
func (c *Client) SendBulkRequest(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
	failed, err := searchstore.SendBulk(ctx, c.client.Transport.Perform, items)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk: %w", err)
	}
	return failed, nil
}

func read(op string, res *esapi.Response, err error, out any) error {
	if err != nil {
		return fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	if err := searchstore.ReadResponse(response{res}, out); err != nil {
		return fmt.Errorf("elasticsearch %s: %w", op, err)
	}
	return nil
}

type response struct {
	*esapi.Response
}

func (r response) GetBody() io.ReadCloser { return r.Body }
func (r response) GetStatusCode() int     { return r.StatusCode }
