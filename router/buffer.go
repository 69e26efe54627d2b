/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// buffer.go is the byte-buffer chain used to build outbound frames by
// prepending headers without copying the payload. It re-expresses the
// original project's intrusive my_buf linked list (previous/next raw
// pointers) as an explicit sequence of segments owned by a single Chain,
// per the design note on ownership-safe containers.
package router

import (
	"errors"

	"github.com/valyala/bytebufferpool"
)

// ErrFrameTooLong is returned when a flattened chain exceeds the maximum
// Ethernet frame size this router is willing to transmit.
var ErrFrameTooLong = errors.New("router: frame exceeds maximum length")

// MaxFrameLen bounds every flattened frame, matching
// ethernet_encapsulate_output's stack buffer size.
const MaxFrameLen = 1550

var segmentPool bytebufferpool.Pool

// segment is one link in a Chain: a length-bearing byte range with
// previous/next pointers. Following next moves from the outermost header
// (sent first) toward the payload; the segment with nil next is the
// innermost payload.
type segment struct {
	previous, next *segment
	buf            *bytebufferpool.ByteBuffer
}

func newSegment(data []byte) *segment {
	b := segmentPool.Get()
	b.Write(data)
	return &segment{buf: b}
}

func (s *segment) bytes() []byte { return s.buf.B }
func (s *segment) length() int   { return len(s.buf.B) }

// Chain is an ordered sequence of segments representing one packet under
// construction, from outermost header to innermost payload.
type Chain struct {
	head *segment
}

// NewChain starts a chain with payload as its sole (and, for now, tail)
// segment.
func NewChain(payload []byte) *Chain {
	return &Chain{head: newSegment(payload)}
}

// AddHeader allocates a new segment for header and links it in front of
// the chain's current head, becoming the new head. This is add_header in
// the original: the child (old head) gains a previous pointer, the new
// parent gains a next pointer.
func (c *Chain) AddHeader(header []byte) {
	s := newSegment(header)
	s.next = c.head
	c.head.previous = s
	c.head = s
}

func (c *Chain) tail() *segment {
	s := c.head
	for s.next != nil {
		s = s.next
	}
	return s
}

// Len returns the total length of every segment in the chain.
func (c *Chain) Len() int {
	total := 0
	for s := c.head; s != nil; s = s.next {
		total += s.length()
	}
	return total
}

// Flatten concatenates the chain head-to-tail into one contiguous frame.
// It fails if the result would exceed MaxFrameLen.
func (c *Chain) Flatten() ([]byte, error) {
	total := c.Len()
	if total > MaxFrameLen {
		return nil, ErrFrameTooLong
	}
	out := make([]byte, 0, total)
	for s := c.head; s != nil; s = s.next {
		out = append(out, s.bytes()...)
	}
	return out, nil
}

// Free releases every segment's backing buffer back to the pool, walking
// from the tail backward via previous, mirroring the original's
// free-recursive behavior. Every output primitive must call Free on all
// exit paths, including the ARP-miss branch.
func (c *Chain) Free() {
	if c == nil || c.head == nil {
		return
	}
	for s := c.tail(); s != nil; {
		prev := s.previous
		segmentPool.Put(s.buf)
		s.previous = nil
		s.next = nil
		s = prev
	}
	c.head = nil
}
