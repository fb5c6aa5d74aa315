package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// Cursor is a forward-only sequence of result rows. Close must be called on
// every path; it is safe to call more than once.
type Cursor interface {
	Next() bool
	Scan(dest any) error
	Err() error
	Close() error
}

type jsonCursor struct {
	body    io.ReadCloser
	dec     *json.Decoder
	current json.RawMessage
	started bool
	done    bool
	closed  bool
	err     error
}

// NewCursor streams a JSON array of row objects from body.
func NewCursor(body io.ReadCloser) Cursor {
	dec := json.NewDecoder(body)
	dec.UseNumber()
	return &jsonCursor{body: body, dec: dec}
}

func (c *jsonCursor) Next() bool {
	if c.done || c.closed || c.err != nil {
		return false
	}
	c.current = nil
	if !c.started {
		tok, err := c.dec.Token()
		if err != nil {
			c.fail(err)
			return false
		}
		if tok == nil {
			c.done = true
			return false
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			c.fail(fmt.Errorf("expected row array, got %v", tok))
			return false
		}
		c.started = true
	}
	if !c.dec.More() {
		if _, err := c.dec.Token(); err != nil {
			c.fail(err)
			return false
		}
		c.done = true
		return false
	}
	var raw json.RawMessage
	if err := c.dec.Decode(&raw); err != nil {
		c.fail(err)
		return false
	}
	c.current = raw
	return true
}

func (c *jsonCursor) Scan(dest any) error {
	if c.current == nil {
		return errors.New("source: scan called without a current row")
	}
	if err := json.Unmarshal(c.current, dest); err != nil {
		return shared.Gateway("scan row", err)
	}
	return nil
}

func (c *jsonCursor) Err() error {
	return c.err
}

func (c *jsonCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.body.Close()
}

func (c *jsonCursor) fail(err error) {
	c.err = shared.Gateway("read rows", err)
}

// Collect drains cur into typed rows and closes it.
func Collect[T any](cur Cursor) (rows []T, err error) {
	defer func() {
		if closeErr := cur.Close(); closeErr != nil && err == nil {
			err = shared.Gateway("close rows", closeErr)
		}
	}()
	for cur.Next() {
		var row T
		if err := cur.Scan(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
