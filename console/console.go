/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Package console is the operator surface spec.md §6 names (single
// keystroke commands to dump the ARP table, dump the NAT tables, and
// quit), grounded on original_source/router/main.cpp's termios
// raw-mode, non-blocking getchar() loop: 'a', 'n', 'q', no newline
// required.
package console

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"curo/router"
)

// Console owns the raw terminal mode while it is running.
type Console struct {
	rt   *router.Router
	fd   int
	prev *term.State
}

// New puts stdin into raw mode so single keystrokes are delivered
// without waiting for a newline.
func New(rt *router.Router) (*Console, error) {
	fd := int(os.Stdin.Fd())
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	// Raw mode alone still blocks a Read until a byte arrives; O_NONBLOCK
	// matches main.cpp's fcntl(0, F_SETFL, O_NONBLOCK) so Poll can be
	// called from the same cooperative loop that polls device transports.
	if err := syscall.SetNonblock(fd, true); err != nil {
		term.Restore(fd, prev)
		return nil, err
	}
	return &Console{rt: rt, fd: fd, prev: prev}, nil
}

// Restore returns the terminal to its original mode.
func (c *Console) Restore() {
	term.Restore(c.fd, c.prev)
}

// Poll reads at most one pending keystroke, non-blocking, and acts on
// it. It returns quit=true when the operator pressed 'q'.
func (c *Console) Poll() (quit bool) {
	buf := make([]byte, 1)
	n, err := os.Stdin.Read(buf)
	if err != nil || n == 0 {
		return false
	}

	fmt.Print("\r\n")
	switch buf[0] {
	case 'a':
		c.dumpARP()
	case 'n':
		c.dumpNAT()
	case 'q':
		return true
	}
	return false
}

func (c *Console) dumpARP() {
	fmt.Print("|-------IP-------|-------MAC-------|--IFACE--|\r\n")
	for _, e := range c.rt.DumpARP() {
		fmt.Printf("| %15s | %17s | %7s |\r\n", e.IP, e.MAC, e.Dev)
	}
}

func (c *Console) dumpNAT() {
	fmt.Print("|-PROTO-|--------LOCAL--------|--------GLOBAL--------|\r\n")
	for _, e := range c.rt.DumpNAT() {
		fmt.Printf("| %5s | %15s:%05d | global port %05d |\r\n", e.Proto, e.LocalAddr, e.LocalPort, e.GlobalPort)
	}
}
