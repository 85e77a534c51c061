// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

// Package services adapts long-running components to suture.Service.
//
//   - HTTPServerService: net/http server with graceful shutdown
//   - RunWatcherService: keeps the serving caches on the newest finished run
package services
