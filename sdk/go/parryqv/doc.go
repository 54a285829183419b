// Package parryqv is a Go client for the Parry-QV gateway REST API: project,
// poll and membership reads, vote quotes, wallet session control, queued
// mutations and media uploads.
package parryqv
