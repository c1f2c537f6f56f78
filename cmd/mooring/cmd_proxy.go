// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// runRenderProxy renders the stack's routing table as an nginx server
// block. The output is baked into the frontend image at build time;
// reconciliation never touches it.
func runRenderProxy(cmd *cobra.Command, args []string) {
	stack, err := config.LoadStack(stackPath())
	exitOnError(err)

	logger := newLogger(true)
	defer logger.Close()

	renderer, err := NewNginxRenderer(cfg.Proxy, logger)
	exitOnError(err)

	out := proxyOutput
	if out == "" {
		out = renderer.OutputPath()
	}
	if out == "-" {
		rendered, err := renderer.Render(stack)
		exitOnError(err)
		fmt.Print(rendered)
		return
	}

	exitOnError(renderer.WriteFile(stack, out))
	ux.Success(fmt.Sprintf("rendered %d routes to %s", len(stack.Routes), out))
}
