/*
Package sealgate is an HMAC-authenticated gateway that lets remote services drive container signing sessions without holding any state between requests.

It separates the caller's proof of identity (Authentication Gate) from the work it performs (Session Store and the variant hierarchy) and from what is recorded about it (Audit Trail).

# Concept

Every request carries a service UUID, an epoch-millisecond timestamp and a base64 HMAC over "uuid:timestamp:METHOD:uri:" plus the raw body. The gate resolves the identity, recomputes the signature in constant time and checks freshness. Only then is the request allowed to touch a session, and only sessions keyed by that identity.

Sessions are tagged values (attached, hashcode or asic container) stored under "version_serviceUUID_containerID". Each operation loads, mutates a copy and writes back, so any replica can resume a workflow another one started.

# Key Features

  - Tenant isolation: identity is part of every session key.
  - Pluggable storage: memory, file and redis stores, with optional encryption at rest.
  - Request-scoped audit: every request emits REQUEST start/finish events with the caller identity attached, even on panic.
  - Opt-in serialization of same-key transitions, locally or across replicas through redis.

# Usage

	cfg, err := sealgate.LoadConfig("sealgate.yaml")
	if err != nil {
		log.Fatal(err)
	}

	gw, err := sealgate.New(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer gw.Close()

	if err := gw.Serve(ctx); err != nil {
		log.Fatal(err)
	}

Library consumers that only need the core can compose auth.Authenticator, session.Service and audit.Trail directly; see the package documentation of each.
*/
package sealgate
