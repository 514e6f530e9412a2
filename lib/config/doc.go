// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the map server.
//
// Configuration is loaded from a single file specified by either the
// MAPVIEW_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search.
//
// The file has four sections:
//
//   - paths: the state root and the unix socket for stream views
//   - portal: the GIS portal URL, account, credential files, and the
//     basemap gallery query override
//   - view: listen address, allowed browser origins, keepalive, stream
//     compression
//   - map: initial basemap, zoom, center, width, and web map item
//
// Environment-specific sections (development, staging, production)
// override base values when [Config].Environment matches. Production
// refuses plain-http portals and an empty origin allow-list.
//
// ${HOME}, ${MAPVIEW_ROOT}, and ${VAR:-default} are expanded in path
// fields after loading. No other environment variables override config
// values.
//
// This package depends on no other mapview packages.
package config
