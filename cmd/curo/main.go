/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Command curo is the process entry point: it loads the startup
// configuration, builds the router core, binds each configured
// interface to its transport, and runs the cooperative poll loop
// alongside the operator console.
//
// Raw-socket binding and interface enumeration are out of scope for
// this core (spec.md §1); Bind is the seam a platform-specific package
// supplies it through.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"curo/config"
	"curo/console"
	"curo/router"
)

// Bind resolves a configured interface name to its link-layer address
// and raw-socket transport. The out-of-scope raw-socket binding layer
// supplies the real implementation; curo only calls through this seam.
var Bind func(name string) (router.MAC, router.Transport, error)

func main() {
	configPath := flag.String("config", "/etc/curo/curo.yaml", "path to the startup configuration")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "curo: %v\n", err)
		os.Exit(1)
	}
	log := router.NewLogger(level)

	if err := run(*configPath, log); err != nil {
		log.Component("main").Errorf("%v", err)
		os.Exit(1)
	}
}

func run(configPath string, log *router.Logger) error {
	doc, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rt := router.NewRouter(log)

	if Bind == nil {
		return fmt.Errorf("no transport binding configured: raw-socket binding is outside this core, wire Bind before calling run")
	}
	for _, iface := range doc.Interfaces {
		mac, transport, err := Bind(iface.Name)
		if err != nil {
			return fmt.Errorf("binding interface %s: %w", iface.Name, err)
		}
		if err := rt.Registry.Add(&router.Device{Name: iface.Name, MAC: mac, Transport: transport}); err != nil {
			return err
		}
	}

	if err := doc.RequireAllInterfacesKnown(rt); err != nil {
		return err
	}
	if err := doc.Apply(rt); err != nil {
		return err
	}

	con, err := console.New(rt)
	if err != nil {
		log.Component("main").Errorf("operator console unavailable: %v", err)
		for {
			rt.PollOnce()
		}
	}
	defer con.Restore()

	// Single-threaded cooperative loop per spec.md §5: the console's
	// keystroke read is non-blocking (console.New puts stdin in raw,
	// non-blocking mode), so it is just one more thing polled each pass
	// alongside the device registry, no extra goroutine needed.
	for {
		if con.Poll() {
			return nil
		}
		rt.PollOnce()
	}
}
