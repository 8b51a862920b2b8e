// Package config loads typed configuration structs from environment
// variables, optionally seeded from a .env file in development.
//
// Every package in this module declares its own Config struct with env tags
// and loads it through config.Load or config.MustLoad during boot. Parsed
// configurations are cached per type, so wiring code can load the same
// config in several places without re-reading the environment.
package config
