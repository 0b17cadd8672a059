// Package live manages interactive face swap sessions and evicts idle ones.
package live
