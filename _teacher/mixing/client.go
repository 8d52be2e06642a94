// Copyright (c) 2025 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mixing

// MinPeers is the minimum number of peers required for a mix run to proceed.
// This value may change over time and is not a stable part of the package API.
const MinPeers = 4
