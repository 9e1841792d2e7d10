//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of sk.AccountStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: one row per account.  Secrets and the provider map are JSON columns.
//   - provider_links: (provider, external_id) primary key pointing at an account.
//
// Username uniqueness is a unique index on the lowercased username.  Provider
// identity uniqueness is the provider_links primary key.  Concurrent creators
// of the same identity therefore get sk.ErrDuplicate instead of a second account.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewAccountStore(db)
package gorm
