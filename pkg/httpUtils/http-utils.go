package http_utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Status lines written by the static responder.
const (
	StatusOK                  = "HTTP/1.1 200 OK"
	StatusNotFound            = "HTTP/1.1 404 NOT FOUND"
	StatusInternalServerError = "HTTP/1.1 500 INTERNAL SERVER ERROR"
)

// MaxHeadLines bounds the number of lines read for one request head.
const MaxHeadLines = 100

// MaxHeadBytes bounds the total size of one request head.
const MaxHeadBytes = 8 << 10

// ErrHeadTooLarge is returned when a request head exceeds MaxHeadLines or
// MaxHeadBytes, or holds a line longer than the reader's buffer.
var ErrHeadTooLarge = errors.New("request head too large")

// ReadRequestHead reads lines up to and excluding the first empty line. Line
// terminators are stripped. A connection closed before the blank line returns
// the lines read so far without error.
func ReadRequestHead(r *bufio.Reader) ([]string, error) {
	var head []string
	size := 0
	for {
		raw, err := r.ReadSlice('\n')
		size += len(raw)
		if errors.Is(err, bufio.ErrBufferFull) || size > MaxHeadBytes {
			return head, ErrHeadTooLarge
		}
		line := strings.TrimRight(string(raw), "\r\n")

		if err != nil {
			if errors.Is(err, io.EOF) {
				if line != "" {
					head = append(head, line)
				}
				return head, nil
			}
			return head, err
		}
		if line == "" {
			return head, nil
		}

		head = append(head, line)
		if len(head) > MaxHeadLines {
			return head, ErrHeadTooLarge
		}
	}
}

// RequestLine returns the first line of a request head, or "" for an empty head.
func RequestLine(head []string) string {
	if len(head) == 0 {
		return ""
	}
	return head[0]
}

// BuildResponse formats a response with a Content-Length header and body.
func BuildResponse(statusLine string, body []byte) []byte {
	header := fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n", statusLine, len(body))
	return append([]byte(header), body...)
}
