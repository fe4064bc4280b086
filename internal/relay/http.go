package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"sparsechat/internal/domain"
)

// ErrNotFound is returned by Collect when the mailbox has no such entry.
var ErrNotFound = errors.New("relay: mailbox entry not found")

// MailboxClient talks to the relay's fallback mailbox over HTTP.
type MailboxClient struct {
	Base string
	HTTP *http.Client
}

// NewMailboxClient returns a client for the relay at base (http[s]://host:port).
func NewMailboxClient(base string) *MailboxClient {
	return &MailboxClient{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

var _ domain.MailboxClient = (*MailboxClient)(nil)

type mailboxMessage struct {
	Message []byte `json:"message"`
}

// Deposit stores payload and returns the id to collect it with.
func (c *MailboxClient) Deposit(ctx context.Context, payload []byte) (domain.MailboxID, error) {
	var out struct {
		ID domain.MailboxID `json:"id"`
	}
	if err := c.post(ctx, "/mailbox", mailboxMessage{Message: payload}, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("relay post /mailbox: empty id in response")
	}
	return out.ID, nil
}

// Collect fetches and removes the entry stored under id.
func (c *MailboxClient) Collect(ctx context.Context, id domain.MailboxID) ([]byte, error) {
	var out mailboxMessage
	if err := c.getJSON(ctx, "/mailbox/"+url.PathEscape(id.String()), &out); err != nil {
		return nil, err
	}
	return out.Message, nil
}

func (c *MailboxClient) post(ctx context.Context, path string, in any, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *MailboxClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
