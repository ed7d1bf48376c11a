// Package cryptoutil holds the digest and comparison helpers shared by the
// upload path and the admin API.
package cryptoutil
