// Package secretkeeper lets people sign in with a local password, Google or
// GitHub and keep a private list of text secrets.
//
// Every sign in mechanism resolves to a single Account.  An account carries an
// optional username and password credential, the external ids it holds at each
// provider, and its ordered collection of secrets.
//
// # Architecture
//
// AccountStore: durable storage for accounts.  Stores must reject writes that
// would give two accounts the same username or the same provider identity.
//
// Directory: the only place accounts are created.  Registers local accounts,
// verifies passwords and finds or creates the account for a provider identity.
//
// Strategy: a proof of identity.  LocalStrategy checks a password, a
// ProviderStrategy exchanges an OAuth code through a ProviderVerifier.
//
// SessionManager: binds an account id to an scs session and resolves it back on
// later requests.
//
// Gate: middleware that only admits requests with an authenticated session.
//
// SecretManager: list, create, read, update and delete secrets, always scoped to
// the signed in account.
//
// # Basic Usage
//
//	import (
//	    sk "github.com/panyam/secretkeeper"
//	    skfs "github.com/panyam/secretkeeper/stores/fs"
//	    "github.com/panyam/secretkeeper/oauth2"
//	)
//
//	store := skfs.NewFSAccountStore("/path/to/storage")
//	app := sk.NewApp(store)
//	github := oauth2.NewGithubVerifier("", "", "")   // reads OAUTH2_GITHUB_* env vars
//	app.Github = sk.NewProviderStrategy(sk.ProviderGithub, github, app.Directory)
//	http.ListenAndServe(":8080", app.Handler())
//
// # Store Implementations
//
// stores/fs keeps accounts as JSON files and is suitable for development and
// single instance deployments.  stores/gorm targets Postgres (and SQLite) and
// stores/gae targets Google Cloud Datastore.  stores/redisstore is an scs
// session store for running several instances behind a load balancer.
//
// The client package (and the secretkeeper binary's login and secrets
// commands) talk to a running server over the same endpoints.
//
// # Security
//
// Passwords are hashed with PBKDF2-HMAC-SHA256 and a random 32 byte salt per
// credential.  Session tokens are renewed on every login.  OAuth state is a
// short lived signed JWT bound to a nonce cookie.
package secretkeeper
