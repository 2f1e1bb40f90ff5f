// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package stream consumes a device's live multipart event stream.
//
// The device never announces the multipart boundary in a usable
// Content-Type header, so the parser sniffs it from the first body
// bytes. Chunks arrive at arbitrary split points; the parser holds
// unconsumed bytes between feeds and never commits a partial part.
package stream

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

// boundaryPattern matches the first boundary line of the stream body:
// a -- token line immediately followed by a part's Content-Type header.
var boundaryPattern = regexp.MustCompile(`(?i)--([^\r\n]+)\r\nContent-Type:`)

var doubleCRLF = []byte("\r\n\r\n")

// Parser is an incremental multipart parser over one connection's byte
// stream. Not safe for concurrent use; each connection gets its own.
type Parser struct {
	buf      []byte
	boundary []byte
}

func NewParser() *Parser {
	return &Parser{}
}

// BoundaryKnown reports whether the boundary has been sniffed yet.
func (p *Parser) BoundaryKnown() bool {
	return p.boundary != nil
}

// Feed appends chunk and returns the bodies of all JSON parts that
// became complete. Parts with a non-JSON content type are consumed and
// discarded. Bytes belonging to an incomplete part stay buffered until
// the next feed.
func (p *Parser) Feed(chunk []byte) [][]byte {
	p.buf = append(p.buf, chunk...)
	if p.boundary == nil {
		m := boundaryPattern.FindSubmatch(p.buf)
		if m == nil {
			return nil
		}
		p.boundary = append([]byte("--"), m[1]...)
	}

	var parts [][]byte
	for {
		i := bytes.Index(p.buf, p.boundary)
		if i < 0 {
			return parts
		}
		if i > 0 {
			p.buf = p.buf[i:]
		}

		rest := p.buf[len(p.boundary):]
		if len(rest) < 2 {
			return parts
		}
		if rest[0] == '-' && rest[1] == '-' {
			// terminal boundary, the device will start a fresh body
			p.buf = nil
			return parts
		}
		if rest[0] != '\r' || rest[1] != '\n' {
			// boundary token inside a body, skip this occurrence
			p.buf = p.buf[len(p.boundary):]
			continue
		}

		hEnd := bytes.Index(rest[2:], doubleCRLF)
		if hEnd < 0 {
			return parts
		}
		headers := parseHeaders(rest[2 : 2+hEnd])
		bodyStart := len(p.boundary) + 2 + hEnd + 4

		isJSON := strings.Contains(strings.ToLower(headers["content-type"]), "json")

		var body []byte
		if cl, ok := headers["content-length"]; ok {
			n, err := strconv.Atoi(cl)
			if err != nil || n <= 0 {
				p.buf = p.buf[bodyStart:]
				continue
			}
			if len(p.buf) < bodyStart+n {
				return parts
			}
			body = p.buf[bodyStart : bodyStart+n]
			p.buf = p.buf[bodyStart+n:]
		} else {
			next := bytes.Index(p.buf[bodyStart:], p.boundary)
			if next < 0 {
				return parts
			}
			body = p.buf[bodyStart : bodyStart+next]
			p.buf = p.buf[bodyStart+next:]
		}

		if !isJSON {
			continue
		}
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 {
			// copy out of the shared buffer, the caller may hold the
			// part across feeds
			parts = append(parts, append([]byte(nil), trimmed...))
		}
	}
}

// parseHeaders reads the CRLF-separated header block into a lowercase
// keyed map.
func parseHeaders(block []byte) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(string(block), "\r\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(line[:idx]))
		headers[k] = strings.TrimSpace(line[idx+1:])
	}
	return headers
}
