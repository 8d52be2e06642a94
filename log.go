// Copyright (c) 2025 The pinsketch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pinsketch

import (
	"github.com/decred/slog"

	"github.com/dcrlabs/pinsketch/bm"
	"github.com/dcrlabs/pinsketch/gf"
	"github.com/dcrlabs/pinsketch/rootfind"
)

// log is the package-level logger, disabled by default. Callers opt in
// with UseLogger, the same idiom used across decred-dcrd's leaf packages.
var log = slog.Disabled

// UseLogger sets the logger used by this package and the subpackages it
// drives (gf, bm, rootfind), so a single call wires logging through the
// whole construction and decode pipeline.
func UseLogger(logger slog.Logger) {
	log = logger
	gf.UseLogger(logger)
	bm.UseLogger(logger)
	rootfind.UseLogger(logger)
}
