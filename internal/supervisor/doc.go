// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

/*
Package supervisor runs the prediction server's long-lived services under a
suture v4 supervisor tree.

	RootSupervisor ("pricecast")
	├── DataSupervisor ("data-layer")
	│   └── RunWatcherService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A failing run watcher (artifact store unavailable, corrupt run) is restarted
with backoff inside the data layer and never takes the HTTP server down; the
predictor keeps answering from whatever run it already cached.

Supervisor events are logged through sutureslog, bridged to zerolog by
logging.NewSlogLogger.

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddDataService(services.NewRunWatcherService(predictor, cfg.Serving.RefreshInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
