// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

/*
Package postcode resolves UK postcodes to administrative districts using the
postcodes.io API.

Two paths are provided:

  - ResolveMany is the training path. Keys are chunked to the service limit
    of 100 per call, at most 10 chunk calls are in flight, and unresolved
    keys are retried in rounds with exponential backoff between rounds. Keys
    still unresolved after the last round, and keys the service knows but
    cannot map to a district, are returned in the failed list. Lookup
    failures are data, not errors.

  - ResolveOne is the serving path: one cached lookup with a short timeout
    and no retry. Both resolved and not-found outcomes are cached for the
    life of the Resolver; transport errors are not.

The round state machine (RunRounds) is independent of the transport so the
retry protocol can be tested with a stub.

Every outbound call goes through a client-side token bucket and a circuit
breaker whose state is exported as Prometheus metrics.
*/
package postcode
