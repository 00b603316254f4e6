// Package abi provides internal arithmetic and coercion helpers for the
// engine: alignment and padding math, overflow-checked size arithmetic,
// allocation limits and numeric coercion of decoded plain values.
package abi
