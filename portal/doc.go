// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package portal is a minimal client for a GIS portal's sharing REST
// API: token generation, portal properties, group search and content,
// item lookup and data, and service layer listings.
//
// The API is organized around two types:
//
//   - [Client]: unauthenticated, holds the portal base URL and HTTP
//     transport. Create with [NewClient].
//   - [Session]: a client bound to an identity. [Client.Login] exchanges
//     a username and password for a token; [Client.Anonymous] returns a
//     session that sends no token.
//
// Every request asks for f=json. The portal reports most failures as a
// 200 response carrying {"error": {...}}; both that form and non-2xx
// statuses surface as [*PortalError]. An authenticated session that
// receives an invalid-token error logs in again once and retries.
//
// Passwords and tokens are held in [secret.Buffer] values. A session's
// password stays available because map views authenticate against the
// portal directly and receive it in their credential bundle.
package portal
