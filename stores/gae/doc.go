//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of sk.AccountStore.
// It is designed for deployment on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - Account: the account, with secrets and provider ids JSON encoded (noindex)
//   - UsernameClaim: keyed by the lowercased username, points at an account
//   - ProviderLink: keyed by provider + ":" + external id, points at an account
//
// Claims are written in the same transaction as the account, so a username or
// provider identity can never be held by two accounts.  UpdateAccount runs its
// mutation inside a transaction and is retried by Datastore on contention.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewAccountStore(client, "")  // default namespace
package gae
