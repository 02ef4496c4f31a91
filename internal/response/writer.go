// Package response frames HTTP/1.1 responses onto a raw connection.
//
// Every response carries the same four headers (Server, Content-Length,
// Connection and Content-Type) and the connection is closed once the body
// has been written, whether or not the write succeeded.
package response

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/unicode"
)

// ServerName is sent in the Server header of every response.
const ServerName = "minihttpd"

// Status lines produced by the server. No other status is ever sent.
const (
	StatusOK             = "200 OK"
	StatusNotFound       = "404 Not Found"
	StatusNotImplemented = "501 Not Implemented"
)

// ContentTypeHTML is used for error pages and directory index files.
const ContentTypeHTML = "text/html"

const (
	notFoundBody       = `<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8"></head><body><div>404 - Not Found</div></body></html>`
	notImplementedBody = `<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8"></head><body><div>501 - Method Not Implemented</div></body></html>`
)

// Send writes status, headers and body to conn and then closes it.
// The first write or close error is returned; conn is closed in every case.
func Send(conn io.WriteCloser, body []byte, status, contentType string) (err error) {
	defer func() {
		if cerr := conn.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	bw := bufio.NewWriterSize(conn, 4<<10)
	bw.WriteString("HTTP/1.1 " + status + "\r\n")
	bw.WriteString("Server: " + ServerName + "\r\n")
	bw.WriteString("Content-Length: " + strconv.Itoa(len(body)) + "\r\n")
	bw.WriteString("Connection: close\r\n")
	bw.WriteString("Content-Type: " + contentType + "\r\n\r\n")
	if _, err := bw.Write(body); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// SendString encodes body as UTF-8 and delegates to Send.
func SendString(conn io.WriteCloser, body, status, contentType string) error {
	b, err := unicode.UTF8.NewEncoder().Bytes([]byte(body))
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode body: %w", err)
	}
	return Send(conn, b, status, contentType)
}

// OK sends a 200 response carrying body.
func OK(conn io.WriteCloser, body []byte, contentType string) error {
	return Send(conn, body, StatusOK, contentType)
}

// NotFound sends the fixed 404 page.
func NotFound(conn io.WriteCloser) error {
	return SendString(conn, notFoundBody, StatusNotFound, ContentTypeHTML)
}

// NotImplemented sends the fixed 501 page.
func NotImplemented(conn io.WriteCloser) error {
	return SendString(conn, notImplementedBody, StatusNotImplemented, ContentTypeHTML)
}
