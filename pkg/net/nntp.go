package net

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"strings"

	"driftshare.io/driftshare/pkg/errs"
)

// NNTPClient is the production Client: a line-oriented NNTP connection
// driven through net/textproto, the standard library's home for exactly
// this family of protocol (SMTP, FTP, NNTP all share the dotted-line/
// status-code shape it was built for). No third-party NNTP driver exists
// anywhere in the retrieved example pack, so this one concern is built
// directly on the standard library rather than an ecosystem client.
type NNTPClient struct {
	conn *textproto.Conn
	raw  net.Conn
}

// NewNNTPClient returns a ClientFactory producing fresh NNTPClient values,
// suitable for passing to net.New.
func NewNNTPClient() ClientFactory {
	return func() Client { return &NNTPClient{} }
}

func (c *NNTPClient) Connect(ctx context.Context, cfg ServerConfig) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{}

	var (
		raw net.Conn
		err error
	)
	if cfg.SSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		raw, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		raw, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return errs.Transient("nntp.Connect", fmt.Errorf("dial %s: %w", addr, err))
	}

	conn := textproto.NewConn(raw)
	// Some servers answer 201 (posting disallowed until authenticated);
	// expecting "20" accepts both 200 and 201 from the one greeting line.
	if _, _, err := conn.ReadCodeLine(20); err != nil {
		raw.Close()
		return errs.Transient("nntp.Connect", fmt.Errorf("reading greeting: %w", err))
	}

	c.raw = raw
	c.conn = conn
	return nil
}

func (c *NNTPClient) Authenticate(ctx context.Context, username, password string) error {
	id, err := c.conn.Cmd("AUTHINFO USER %s", username)
	if err != nil {
		return errs.Transient("nntp.Authenticate", err)
	}
	c.conn.StartResponse(id)
	code, _, err := c.conn.ReadCodeLine(381)
	c.conn.EndResponse(id)
	if err != nil && code != 281 {
		return errs.Auth("nntp.Authenticate", fmt.Errorf("AUTHINFO USER: %w", err))
	}

	id, err = c.conn.Cmd("AUTHINFO PASS %s", password)
	if err != nil {
		return errs.Transient("nntp.Authenticate", err)
	}
	c.conn.StartResponse(id)
	_, _, err = c.conn.ReadCodeLine(281)
	c.conn.EndResponse(id)
	if err != nil {
		return errs.Auth("nntp.Authenticate", fmt.Errorf("AUTHINFO PASS: %w", err))
	}
	return nil
}

// Post issues IHAVE/POST semantics: POST, the 340 continuation, the
// dot-stuffed article (headers blank-line body), terminated by ".".
func (c *NNTPClient) Post(ctx context.Context, subject string, body []byte, group string) (string, error) {
	id, err := c.conn.Cmd("POST")
	if err != nil {
		return "", errs.Transient("nntp.Post", err)
	}
	c.conn.StartResponse(id)
	_, _, err = c.conn.ReadCodeLine(340)
	c.conn.EndResponse(id)
	if err != nil {
		return "", errs.Transient("nntp.Post", fmt.Errorf("POST not accepted: %w", err))
	}

	messageID := fmt.Sprintf("<%s@driftshare>", subject)
	w := c.conn.DotWriter()
	fmt.Fprintf(w, "Newsgroups: %s\r\n", group)
	fmt.Fprintf(w, "Subject: %s\r\n", subject)
	fmt.Fprintf(w, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(w, "\r\n")
	w.Write(body)
	if err := w.Close(); err != nil {
		return "", errs.Transient("nntp.Post", fmt.Errorf("writing article body: %w", err))
	}

	if _, _, err := c.conn.ReadCodeLine(240); err != nil {
		return "", errs.Transient("nntp.Post", fmt.Errorf("article rejected: %w", err))
	}
	return messageID, nil
}

// Fetch issues ARTICLE <message-id> and returns its headers and body.
func (c *NNTPClient) Fetch(ctx context.Context, messageID string) (map[string]string, []byte, error) {
	id, err := c.conn.Cmd("ARTICLE %s", messageID)
	if err != nil {
		return nil, nil, errs.Transient("nntp.Fetch", err)
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)

	_, _, err = c.conn.ReadCodeLine(220)
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == 430 {
			// "no such article": classified so the operation layer does not retry it.
			return nil, nil, errs.Integrity("nntp.Fetch", fmt.Errorf("ARTICLE %s: %w", messageID, err))
		}
		return nil, nil, errs.Transient("nntp.Fetch", fmt.Errorf("ARTICLE %s: %w", messageID, err))
	}

	headers := make(map[string]string)
	reader := c.conn.R
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, nil, errs.Transient("nntp.Fetch", fmt.Errorf("reading headers: %w", err))
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ": "); ok {
			headers[k] = v
		}
	}

	dotReader := c.conn.DotReader()
	var body strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, err := dotReader.Read(buf)
		if n > 0 {
			body.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return headers, []byte(body.String()), nil
}

func (c *NNTPClient) Capabilities(ctx context.Context) (Capabilities, error) {
	id, err := c.conn.Cmd("CAPABILITIES")
	if err != nil {
		return Capabilities{}, errs.Transient("nntp.Capabilities", err)
	}
	c.conn.StartResponse(id)
	defer c.conn.EndResponse(id)

	_, _, err = c.conn.ReadCodeLine(101)
	if err != nil {
		// Older servers don't support CAPABILITIES at all; report a
		// conservative default rather than failing the caller.
		return Capabilities{PostingAllowed: true, MaxConnections: 1}, nil
	}

	caps := Capabilities{MaxConnections: 1}
	lines, err := c.conn.ReadDotLines()
	if err != nil {
		return caps, errs.Transient("nntp.Capabilities", err)
	}
	for _, line := range lines {
		if strings.HasPrefix(line, "POST") {
			caps.PostingAllowed = true
		}
	}
	return caps, nil
}

func (c *NNTPClient) Ping(ctx context.Context) error {
	id, err := c.conn.Cmd("DATE")
	if err != nil {
		return errs.Transient("nntp.Ping", err)
	}
	c.conn.StartResponse(id)
	_, _, err = c.conn.ReadCodeLine(111)
	c.conn.EndResponse(id)
	if err != nil {
		return errs.Transient("nntp.Ping", err)
	}
	return nil
}

func (c *NNTPClient) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.Cmd("QUIT")
	return c.conn.Close()
}
