package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Client talks to a running engine over its profile unix socket.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client dialing the given unix socket. The host in
// request URLs is a placeholder; the dialer pins every connection to the
// socket.
func NewClient(socketPath string) *Client {
	return &Client{
		base: "http://engine",
		hc: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Status fetches the engine status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send submits a message for delivery and returns its ref.
func (c *Client) Send(ctx context.Context, conversation string, group bool, content string) (uint64, error) {
	var out sendResponse
	req := sendRequest{Conversation: conversation, Group: group, Content: content}
	if err := c.post(ctx, "/v1/send", req, &out); err != nil {
		return 0, err
	}
	return out.Ref, nil
}

// Retry requeues a failed message.
func (c *Client) Retry(ctx context.Context, conversation string, group bool, ref uint64) error {
	req := retryRequest{Conversation: conversation, Group: group, Ref: ref}
	return c.post(ctx, "/v1/retry", req, nil)
}

// Conversations lists archived conversations, most recently active first.
func (c *Client) Conversations(ctx context.Context, limit int) ([]ConversationSummary, error) {
	path := "/v1/conversations"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out conversationsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// Messages returns the live view of one conversation.
func (c *Client) Messages(ctx context.Context, key string, limit int) ([]MessageView, error) {
	path := "/v1/conversations/" + url.PathEscape(key) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out messagesResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Clear empties one conversation.
func (c *Client) Clear(ctx context.Context, key string) error {
	path := "/v1/conversations/" + url.PathEscape(key) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Search runs a full-text query over the message archive.
func (c *Client) Search(ctx context.Context, query, conversation string, limit int) ([]SearchHit, error) {
	q := url.Values{}
	q.Set("q", query)
	if conversation != "" {
		q.Set("conversation", conversation)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out searchResponse
	if err := c.get(ctx, "/v1/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Events consumes the engine event stream, invoking fn for each event until
// the context is canceled or the stream ends.
func (c *Client) Events(ctx context.Context, namespace string, fn func(kind string, data json.RawMessage)) error {
	path := "/v1/events?namespace=" + url.QueryEscape(namespace)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var kind string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(kind, json.RawMessage(data))
			}
			kind, data = "", nil
		case strings.HasPrefix(line, "event: "):
			kind = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = append(data, strings.TrimPrefix(line, "data: ")...)
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return &Error{StatusCode: resp.StatusCode, Code: "http_error", Message: resp.Status}
	}
	return &Error{
		StatusCode: resp.StatusCode,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
	}
}
